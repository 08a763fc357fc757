package chat

import (
	"testing"

	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeMessages(t *testing.T) {
	history := []ml.ChatTurn{
		{Role: ml.RoleUser, Content: "there's been an accident"},
		{Role: ml.RoleAssistant, Content: "I'm getting you help. What is your exact address?"},
		{Role: ml.RoleUser, Content: "corner of 5th and Pine"},
	}

	tests := []struct {
		name     string
		history  []ml.ChatTurn
		location map[string]any
		wantLen  int
	}{
		{name: "no history no location", wantLen: 2},
		{name: "history only", history: history, wantLen: 5},
		{name: "location only", location: map[string]any{"latitude": 47.6, "longitude": -122.3}, wantLen: 3},
		{name: "history and location", history: history, location: map[string]any{"city": "Seattle"}, wantLen: 6},
		{name: "empty location is ignored", history: history, location: map[string]any{}, wantLen: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeMessages("he is not breathing", tt.history, tt.location)
			require.Len(t, got, tt.wantLen)

			assert.Equal(t, ml.ChatTurn{Role: ml.RoleSystem, Content: SystemPrompt}, got[0])

			offset := 1
			if len(tt.location) > 0 {
				assert.Equal(t, ml.RoleSystem, got[1].Role)
				assert.Contains(t, got[1].Content, "User location data: ")
				assert.Contains(t, got[1].Content, "Use this to help confirm their address.")
				offset = 2
			}

			assert.Equal(t, tt.history, nilIfEmpty(got[offset:len(got)-1]))
			assert.Equal(t, ml.ChatTurn{Role: ml.RoleUser, Content: "he is not breathing"}, got[len(got)-1])
		})
	}
}

func TestComposeMessagesRendersLocationAsJSON(t *testing.T) {
	got := ComposeMessages("help", nil, map[string]any{"longitude": -122.3, "latitude": 47.6})
	require.Len(t, got, 3)
	assert.Equal(t, `User location data: {"latitude":47.6,"longitude":-122.3}. Use this to help confirm their address.`, got[1].Content)
}

func TestComposeMessagesDoesNotMutateHistory(t *testing.T) {
	history := make([]ml.ChatTurn, 1, 8)
	history[0] = ml.ChatTurn{Role: ml.RoleUser, Content: "first"}

	_ = ComposeMessages("second", history, nil)

	assert.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, ml.ChatTurn{}, history[:2][1], "spare capacity must stay untouched")
}

func nilIfEmpty(turns []ml.ChatTurn) []ml.ChatTurn {
	if len(turns) == 0 {
		return nil
	}
	return turns
}
