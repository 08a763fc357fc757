package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrProvider wraps every failure of a language-model provider call.
var ErrProvider = errors.New("language model provider error")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EmergencyDetails is the canonical flat record extracted from a dispatch payload.
type EmergencyDetails struct {
	Location           string `json:"location"`
	Incident           string `json:"incident"`
	VictimCount        string `json:"victim_count"`
	UserReportedStatus string `json:"user_reported_status"`
}

// UnmarshalJSON accepts numbers and booleans for any field, since models
// occasionally emit "victim_count": 2 instead of "2".
func (e *EmergencyDetails) UnmarshalJSON(b []byte) error {
	var raw struct {
		Location           freeText `json:"location"`
		Incident           freeText `json:"incident"`
		VictimCount        freeText `json:"victim_count"`
		UserReportedStatus freeText `json:"user_reported_status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*e = EmergencyDetails{
		Location:           string(raw.Location),
		Incident:           string(raw.Incident),
		VictimCount:        string(raw.VictimCount),
		UserReportedStatus: string(raw.UserReportedStatus),
	}
	return nil
}

type ChatOutcome struct {
	Reply             string            `json:"reply"`
	EmergencyDetails  *EmergencyDetails `json:"emergency_details"`
	DispatchTriggered bool              `json:"dispatch_triggered"`
	RequiresLocation  bool              `json:"requires_location"`
}

// ChatCompleter sends an ordered conversation to a language model and returns its text reply.
// Implementations wrap failures with ErrProvider.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []ChatTurn) (string, error)
}

type freeText string

func (f *freeText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = freeText(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = freeText(n.String())
		return nil
	}

	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = freeText(strconv.FormatBool(v))
		return nil
	}

	return fmt.Errorf("unsupported free text value: %s", string(b))
}
