package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiresLocation(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{name: "asks for current location", reply: "Can you tell me your current location?", want: true},
		{name: "asks for address", reply: "What is the exact ADDRESS?", want: true},
		{name: "where are you", reply: "Stay with me. Where are you right now?", want: true},
		{name: "where is this", reply: "Where is this happening?", want: true},
		{name: "keyword inside a word", reply: "Please relocate to safety.", want: false},
		{name: "location as part of word", reply: "Share your geolocation with me.", want: true},
		{name: "no keyword", reply: "Stay with me. Is the person conscious?", want: false},
		{name: "empty", reply: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresLocation(tt.reply), "RequiresLocation(%q)", tt.reply)
		})
	}
}
