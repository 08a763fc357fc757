package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/searchandrescuegg/medilocator/internal/chat"
	"github.com/searchandrescuegg/medilocator/internal/config"
	"github.com/searchandrescuegg/medilocator/internal/llm"
	"github.com/searchandrescuegg/medilocator/internal/ml"
)

func main() {
	_ = godotenv.Load()

	var (
		provider     = flag.String("provider", envOr("LLM_PROVIDER", config.ProviderOpenAI), "LLM provider (openai or ollama)")
		model        = flag.String("model", "", "Model name, defaults to OPENAI_MODEL or OLLAMA_MODEL")
		historyFile  = flag.String("history", "", "Optional JSON file with the prior conversation turns")
		locationJSON = flag.String("location", "", `Optional user location, e.g. '{"lat": 37.77, "lng": -122.41}'`)
		timeout      = flag.Duration("timeout", 30*time.Second, "LLM timeout")
	)
	flag.Parse()

	message := flag.Arg(0)
	if message == "" {
		fmt.Println("Usage: test-chat [-provider openai|ollama] [-history turns.json] [-location '{...}'] <message>")
		os.Exit(1)
	}

	c := &config.Config{
		LLMProvider:    *provider,
		LLMTimeout:     *timeout,
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:    envOr("OPENAI_MODEL", "gpt-3.5-turbo"),
		MaxTokens:      200,
		Temperature:    0.1,
		OllamaProtocol: envOr("OLLAMA_PROTOCOL", "http"),
		OllamaHost:     envOr("OLLAMA_HOST", "localhost:11434"),
		OllamaModel:    envOr("OLLAMA_MODEL", "llama3.1:8b"),
	}
	if *model != "" {
		c.OpenAIModel = *model
		c.OllamaModel = *model
	}

	completer, err := llm.NewChatCompleter(c)
	if err != nil {
		slog.Error("could not create llm client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var history []ml.ChatTurn
	if *historyFile != "" {
		historyBytes, err := os.ReadFile(*historyFile)
		if err != nil {
			slog.Error("could not read history file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := json.Unmarshal(historyBytes, &history); err != nil {
			slog.Error("could not parse history file", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var location map[string]any
	if *locationJSON != "" {
		if err := json.Unmarshal([]byte(*locationJSON), &location); err != nil {
			slog.Error("could not parse location", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	outcome := chat.NewService(completer, *timeout, nil).ProcessMessage(context.Background(), message, history, location)

	jsonBytes, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		slog.Error("could not marshal chat outcome to JSON", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Println(string(jsonBytes))
}

func envOr(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}
