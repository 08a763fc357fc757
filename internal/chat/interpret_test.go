package chat

import (
	"testing"

	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dispatchReply = `{
  "confirmation": "Help is on the way. An ambulance has been dispatched to 123 Oak St. Please wait for further instructions.",
  "emergency_details": {
    "location": "123 Oak St",
    "incident": "collapsed, not breathing",
    "victim_count": "1",
    "user_reported_status": "not breathing"
  },
  "next_step": "A professional may call you on the number we have on file. Please keep your phone free and unlocked.",
  "dispatch_triggered": true
}`

func TestInterpretReplyDispatch(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  ml.EmergencyDetails
	}{
		{
			name:  "well formed payload",
			reply: dispatchReply,
			want: ml.EmergencyDetails{
				Location:           "123 Oak St",
				Incident:           "collapsed, not breathing",
				VictimCount:        "1",
				UserReportedStatus: "not breathing",
			},
		},
		{
			name:  "surrounding whitespace",
			reply: "\n\n  " + dispatchReply + "  \n",
			want: ml.EmergencyDetails{
				Location:           "123 Oak St",
				Incident:           "collapsed, not breathing",
				VictimCount:        "1",
				UserReportedStatus: "not breathing",
			},
		},
		{
			name:  "numeric victim count and no next step",
			reply: `{"confirmation":"Help is on the way.","emergency_details":{"location":"Pier 39","incident":"drowning","victim_count":2,"user_reported_status":"conscious"}}`,
			want: ml.EmergencyDetails{
				Location:           "Pier 39",
				Incident:           "drowning",
				VictimCount:        "2",
				UserReportedStatus: "conscious",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpretReply(tt.reply)
			require.NoError(t, err)

			assert.True(t, got.DispatchTriggered)
			assert.False(t, got.RequiresLocation)
			require.NotNil(t, got.EmergencyDetails)
			assert.Equal(t, tt.want, *got.EmergencyDetails)
			assert.Contains(t, got.Reply, "Help is on the way.")
		})
	}
}

func TestInterpretReplyDispatchUsesConfirmation(t *testing.T) {
	got := InterpretReply(dispatchReply)
	assert.Equal(t, "Help is on the way. An ambulance has been dispatched to 123 Oak St. Please wait for further instructions.", got.Reply)
}

func TestInterpretReplyMalformedPayload(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "truncated json", reply: `{"confirmation": "Help is on the way", "emergency_details": {"location": "123 Oak`},
		{name: "trailing prose", reply: dispatchReply + "\nStay on the line."},
		{name: "missing confirmation", reply: `{"emergency_details": {"location": "123 Oak St"}}`},
		{name: "empty confirmation", reply: `{"confirmation": "  ", "emergency_details": {"location": "123 Oak St"}}`},
		{name: "null details", reply: `{"confirmation": "Help is on the way", "emergency_details": null}`},
		{name: "details not an object", reply: `{"confirmation": "Help is on the way", "emergency_details": "123 Oak St"}`},
		{name: "confirmation not a string", reply: `{"confirmation": 42, "emergency_details": {"location": "123 Oak St"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpretReply(tt.reply)
			assert.ErrorIs(t, err, ErrMalformedDispatchPayload)

			assert.False(t, got.DispatchTriggered)
			assert.Nil(t, got.EmergencyDetails)
			assert.Equal(t, tt.reply, got.Reply)
		})
	}
}

func TestInterpretReplyNormal(t *testing.T) {
	tests := []struct {
		name             string
		reply            string
		requiresLocation bool
	}{
		{name: "asks for location", reply: "Can you tell me your current location?", requiresLocation: true},
		{name: "asks about breathing", reply: "Stay with me. Is the person breathing?", requiresLocation: false},
		{name: "json without details field", reply: `{"confirmation": "ok"}`, requiresLocation: false},
		{name: "details mentioned in prose", reply: "I need the emergency_details first. What is the address?", requiresLocation: true},
		{name: "leading whitespace is preserved", reply: "  Where are you?  ", requiresLocation: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpretReply(tt.reply)
			require.NoError(t, err)

			assert.Equal(t, ml.ChatOutcome{
				Reply:             tt.reply,
				EmergencyDetails:  nil,
				DispatchTriggered: false,
				RequiresLocation:  tt.requiresLocation,
			}, got)
		})
	}
}
