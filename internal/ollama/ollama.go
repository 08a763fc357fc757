package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
	"github.com/searchandrescuegg/medilocator/internal/ml"
)

type OllamaClient struct {
	client      *ollama.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOllamaClient(baseUrl *url.URL, httpClient *http.Client, model string, temperature float32, maxTokens int) *OllamaClient {
	return &OllamaClient{
		client:      ollama.NewClient(baseUrl, httpClient),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (oc *OllamaClient) ChatCompletion(ctx context.Context, messages []ml.ChatTurn) (string, error) {
	ollamaMessages := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		ollamaMessages = append(ollamaMessages, ollama.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	req := &ollama.ChatRequest{
		Model:    oc.model,
		Messages: ollamaMessages,
		Stream:   func(b bool) *bool { return &b }(false),
		Options: map[string]any{
			"temperature": oc.temperature,
			"num_predict": oc.maxTokens,
		},
	}

	var content strings.Builder
	var done bool
	respFunc := func(resp ollama.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			done = true
		}
		return nil
	}

	if err := oc.client.Chat(ctx, req, respFunc); err != nil {
		return "", fmt.Errorf("%w: ollama chat error: %s", ml.ErrProvider, err.Error())
	}

	reply := strings.TrimSpace(content.String())
	if !done || reply == "" {
		return "", fmt.Errorf("%w: no response received from ollama", ml.ErrProvider)
	}

	return reply, nil
}
