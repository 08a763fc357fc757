package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	ErrMissingOpenAIKey   = errors.New("OPENAI_API_KEY is required when LLM_PROVIDER is openai")
	ErrUnknownLLMProvider = errors.New("unknown llm provider")
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"error"`

	ProjectName   string   `env:"PROJECT_NAME" envDefault:"Medilocator API"`
	APIVersion    string   `env:"API_VERSION" envDefault:"1.0.0"`
	ListenAddress string   `env:"LISTEN_ADDRESS" envDefault:":8000"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envDefault:"*"`
	MaxBodyBytes  int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	MaxAudioBytes int64    `env:"MAX_AUDIO_BYTES" envDefault:"20971520"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPort    int  `env:"METRICS_PORT" envDefault:"8081"`

	Local bool `env:"LOCAL" envDefault:"false"`

	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingSampleRate float64 `env:"TRACING_SAMPLERATE" envDefault:"0.01"`
	TracingService    string  `env:"TRACING_SERVICE" envDefault:"medilocator"`
	TracingVersion    string  `env:"TRACING_VERSION"`

	JWTSecret         string        `env:"JWT_SECRET,required,notEmpty"`
	AccessTokenExpiry time.Duration `env:"ACCESS_TOKEN_EXPIRE" envDefault:"720h"` // 30 days

	LLMProvider string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMTimeout  time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"200"`
	Temperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.1"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`

	OllamaProtocol string `env:"OLLAMA_PROTOCOL" envDefault:"http"`
	OllamaHost     string `env:"OLLAMA_HOST" envDefault:"localhost:11434"`
	OllamaModel    string `env:"OLLAMA_MODEL" envDefault:"llama3.1:8b"`

	DragonflyAddress        string        `env:"DRAGONFLY_ADDRESS" envDefault:"localhost:6379"`
	DragonflyPassword       string        `env:"DRAGONFLY_PASSWORD"`
	DragonflyDB             int           `env:"DRAGONFLY_DB" envDefault:"0"`
	DragonflyRequestTimeout time.Duration `env:"DRAGONFLY_REQUEST_TIMEOUT" envDefault:"1s"`

	DispatchDedupeTTL time.Duration `env:"DISPATCH_DEDUPE_TTL" envDefault:"30m"`

	PulsarEnabled       bool          `env:"PULSAR_ENABLED" envDefault:"false"`
	PulsarURL           string        `env:"PULSAR_URL" envDefault:"pulsar://localhost:6650"`
	PulsarDispatchTopic string        `env:"PULSAR_DISPATCH_TOPIC" envDefault:"public/medilocator/dispatches"`
	PulsarTimeout       time.Duration `env:"PULSAR_TIMEOUT" envDefault:"5s"`

	S3Enabled   bool          `env:"S3_ENABLED" envDefault:"false"`
	S3Region    string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey string        `env:"S3_ACCESS_KEY"`
	S3SecretKey string        `env:"S3_SECRET_KEY"`
	S3Bucket    string        `env:"S3_BUCKET"`
	S3Endpoint  string        `env:"S3_ENDPOINT"`
	S3Timeout   time.Duration `env:"S3_TIMEOUT" envDefault:"10s"`

	SlackToken     string        `env:"SLACK_TOKEN"`
	SlackChannelID string        `env:"SLACK_CHANNEL_ID"`
	SlackTimeout   time.Duration `env:"SLACK_TIMEOUT" envDefault:"5s"`
	SlackThreadTTL time.Duration `env:"SLACK_THREAD_TTL" envDefault:"30m"` // how long follow-up messages land in the incident thread

	ASREnabled  bool          `env:"ASR_ENABLED" envDefault:"false"`
	ASREndpoint string        `env:"ASR_ENDPOINT" envDefault:"http://localhost:8080/asr"`
	ASRTimeout  time.Duration `env:"ASR_TIMEOUT" envDefault:"10s"`

	SinkConcurrency int           `env:"SINK_CONCURRENCY" envDefault:"3"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT" envDefault:"30s"`
}

func NewConfig() (*Config, error) {
	var cfg Config

	err := env.Parse(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrMissingOpenAIKey
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLLMProvider, c.LLMProvider)
	}
	return nil
}

// SlackEnabled reports whether responder alerts can be sent.
func (c *Config) SlackEnabled() bool {
	return c.SlackToken != "" && c.SlackChannelID != ""
}
