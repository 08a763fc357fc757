package chat

import (
	"encoding/json"
	"fmt"

	"github.com/searchandrescuegg/medilocator/internal/ml"
)

// ComposeMessages builds the turns sent to the model: the system prompt, the optional
// location context, the prior history in order and finally the new user message.
func ComposeMessages(message string, history []ml.ChatTurn, location map[string]any) []ml.ChatTurn {
	size := 2 + len(history)
	if len(location) > 0 {
		size++
	}

	messages := make([]ml.ChatTurn, 0, size)
	messages = append(messages, ml.ChatTurn{Role: ml.RoleSystem, Content: SystemPrompt})

	if len(location) > 0 {
		messages = append(messages, ml.ChatTurn{Role: ml.RoleSystem, Content: renderLocation(location)})
	}

	messages = append(messages, history...)
	messages = append(messages, ml.ChatTurn{Role: ml.RoleUser, Content: message})

	return messages
}

func renderLocation(location map[string]any) string {
	rendered, err := json.Marshal(location)
	if err != nil {
		// values decoded from JSON always marshal; anything else falls back to Go syntax
		return fmt.Sprintf(locationContextFormat, fmt.Sprintf("%v", location))
	}
	return fmt.Sprintf(locationContextFormat, rendered)
}
