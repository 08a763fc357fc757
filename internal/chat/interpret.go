package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/searchandrescuegg/medilocator/internal/ml"
)

const emergencyDetailsField = "emergency_details"

var ErrMalformedDispatchPayload = errors.New("malformed dispatch payload")

type dispatchPayload struct {
	Confirmation      *string              `json:"confirmation"`
	EmergencyDetails  *ml.EmergencyDetails `json:"emergency_details"`
	NextStep          string               `json:"next_step"`
	DispatchTriggered bool                 `json:"dispatch_triggered"`
}

// InterpretReply maps a raw model reply to a chat outcome. A reply that looks like a dispatch
// payload but does not parse degrades to a normal reply.
func InterpretReply(raw string) ml.ChatOutcome {
	outcome, _ := interpretReply(raw)
	return outcome
}

// interpretReply returns an error wrapping ErrMalformedDispatchPayload when a dispatch payload was
// detected but rejected. The outcome is valid either way.
func interpretReply(raw string) (ml.ChatOutcome, error) {
	trimmed := strings.TrimSpace(raw)

	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, emergencyDetailsField) {
		return normalOutcome(raw), nil
	}

	payload, err := parseDispatchPayload(trimmed)
	if err != nil {
		return normalOutcome(raw), err
	}

	return ml.ChatOutcome{
		Reply:             *payload.Confirmation,
		EmergencyDetails:  payload.EmergencyDetails,
		DispatchTriggered: true,
		RequiresLocation:  false,
	}, nil
}

func parseDispatchPayload(text string) (*dispatchPayload, error) {
	var payload dispatchPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedDispatchPayload, err.Error())
	}

	if payload.Confirmation == nil || strings.TrimSpace(*payload.Confirmation) == "" {
		return nil, fmt.Errorf("%w: missing confirmation", ErrMalformedDispatchPayload)
	}

	if payload.EmergencyDetails == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedDispatchPayload, emergencyDetailsField)
	}

	return &payload, nil
}

func normalOutcome(raw string) ml.ChatOutcome {
	return ml.ChatOutcome{
		Reply:             raw,
		EmergencyDetails:  nil,
		DispatchTriggered: false,
		RequiresLocation:  RequiresLocation(raw),
	}
}
