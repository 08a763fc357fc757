package server

import (
	"context"
	"io"
	"net/http"

	"github.com/searchandrescuegg/medilocator/internal/auth"
	"github.com/searchandrescuegg/medilocator/internal/dragonfly"
	"github.com/searchandrescuegg/medilocator/internal/emergency"
	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/searchandrescuegg/medilocator/pkg/asr"
)

const apiPrefix = "/api/v1"

const (
	defaultMaxBodyBytes  = 1 << 20
	defaultMaxAudioBytes = 20 << 20
)

type Authenticator interface {
	SignInAnonymously(ctx context.Context, deviceID string) (*auth.Token, error)
	Authenticate(ctx context.Context, token string) (string, error)
}

type ChatProcessor interface {
	ProcessMessage(ctx context.Context, message string, history []ml.ChatTurn, location map[string]any) ml.ChatOutcome
}

type Recorder interface {
	Record(ctx context.Context, ex emergency.Exchange)
	ListEmergencies(ctx context.Context, userID string) []dragonfly.EmergencyLog
}

type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio io.Reader) (*asr.TranscriptionResponse, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Options struct {
	ServiceName   string
	Version       string
	CORSOrigins   []string
	MaxBodyBytes  int64
	MaxAudioBytes int64

	// HealthChecker, when set, turns a failed ping into an unhealthy health response.
	HealthChecker HealthChecker
}

type Server struct {
	opts        Options
	auth        Authenticator
	chat        ChatProcessor
	recorder    Recorder
	transcriber Transcriber
}

// NewServer wires the HTTP surface. A nil transcriber leaves the voice endpoint unregistered.
func NewServer(opts Options, authenticator Authenticator, chat ChatProcessor, recorder Recorder, transcriber Transcriber) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = defaultMaxAudioBytes
	}

	return &Server{
		opts:        opts,
		auth:        authenticator,
		chat:        chat,
		recorder:    recorder,
		transcriber: transcriber,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET "+apiPrefix+"/health", s.handleHealth)
	mux.Handle("POST "+apiPrefix+"/auth/anonymous", s.limitBody(s.opts.MaxBodyBytes, http.HandlerFunc(s.handleAnonymousSignIn)))
	mux.Handle("POST "+apiPrefix+"/chat", s.authenticated(s.limitBody(s.opts.MaxBodyBytes, http.HandlerFunc(s.handleChat))))
	mux.Handle("GET "+apiPrefix+"/user/emergencies", s.authenticated(http.HandlerFunc(s.handleListEmergencies)))

	if s.transcriber != nil {
		mux.Handle("POST "+apiPrefix+"/chat/voice", s.authenticated(s.limitBody(s.opts.MaxAudioBytes, http.HandlerFunc(s.handleVoiceChat))))
	}

	return cors(s.opts.CORSOrigins, mux)
}
