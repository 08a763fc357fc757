package llm

import (
	"fmt"
	"net/http"
	"net/url"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/searchandrescuegg/medilocator/internal/config"
	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/searchandrescuegg/medilocator/internal/ollama"
	"github.com/searchandrescuegg/medilocator/internal/openai"
)

// NewChatCompleter builds the provider selected by LLM_PROVIDER. The HTTP client timeout matches
// LLM_TIMEOUT so a stuck connection is released even if the caller's context is not cancelled.
func NewChatCompleter(c *config.Config) (ml.ChatCompleter, error) {
	httpClient := &http.Client{Timeout: c.LLMTimeout}

	switch c.LLMProvider {
	case config.ProviderOpenAI:
		openaiConfig := goopenai.DefaultConfig(c.OpenAIAPIKey)
		if c.OpenAIBaseURL != "" {
			openaiConfig.BaseURL = c.OpenAIBaseURL
		}
		openaiConfig.HTTPClient = httpClient

		return openai.NewOpenAIClient(
			goopenai.NewClientWithConfig(openaiConfig),
			c.OpenAIModel,
			c.Temperature,
			c.MaxTokens,
		), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClient(
			&url.URL{Scheme: c.OllamaProtocol, Host: c.OllamaHost},
			httpClient,
			c.OllamaModel,
			c.Temperature,
			c.MaxTokens,
		), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownLLMProvider, c.LLMProvider)
	}
}
