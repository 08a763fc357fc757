package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/searchandrescuegg/medilocator/internal/ml"
)

type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIClient(client *openai.Client, model string, temperature float32, maxTokens int) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (oc *OpenAIClient) ChatCompletion(ctx context.Context, messages []ml.ChatTurn) (string, error) {
	oaMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMessages = append(oaMessages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := oc.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       oc.model,
		Messages:    oaMessages,
		Temperature: oc.temperature,
		MaxTokens:   oc.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion error: %s", ml.ErrProvider, err.Error())
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in chat completion response", ml.ErrProvider)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
