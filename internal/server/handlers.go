package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/searchandrescuegg/medilocator/internal/auth"
	"github.com/searchandrescuegg/medilocator/internal/dragonfly"
	"github.com/searchandrescuegg/medilocator/internal/emergency"
	"github.com/searchandrescuegg/medilocator/internal/ml"
)

type anonymousSignInRequest struct {
	DeviceID string `json:"device_id"`
}

type chatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []ml.ChatTurn  `json:"conversation_history"`
	UserLocation        map[string]any `json:"user_location"`
}

type voiceChatResponse struct {
	ml.ChatOutcome
	Transcription string `json:"transcription"`
}

type emergenciesResponse struct {
	Emergencies []dragonfly.EmergencyLog `json:"emergencies"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{Message: "Medilocator API", Version: s.opts.Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.HealthChecker != nil {
		if err := s.opts.HealthChecker.Ping(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Service: s.opts.ServiceName, Version: s.opts.Version})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: s.opts.ServiceName, Version: s.opts.Version})
}

func (s *Server) handleAnonymousSignIn(w http.ResponseWriter, r *http.Request) {
	var req anonymousSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	token, err := s.auth.SignInAnonymously(r.Context(), req.DeviceID)
	if err != nil {
		slog.Error("anonymous sign in failed", slog.String("error", err.Error()))
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := validateChat(req.Message, req.ConversationHistory); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.converse(r, req.Message, req.ConversationHistory, req.UserLocation))
}

func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.opts.MaxAudioBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Failed to parse form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to get audio file: "+err.Error())
		return
	}
	defer func() {
		_ = file.Close()
	}()

	var history []ml.ChatTurn
	if raw := r.FormValue("conversation_history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid conversation_history: "+err.Error())
			return
		}
	}

	var location map[string]any
	if raw := r.FormValue("user_location"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &location); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid user_location: "+err.Error())
			return
		}
	}

	if err := validateHistory(history); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	slog.Debug("received voice message", slog.String("user_id", userID), slog.String("filename", header.Filename), slog.Int64("size", header.Size))

	tr, err := s.transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		slog.Error("failed to transcribe voice message", slog.String("error", err.Error()), slog.String("user_id", userID))
		writeDetail(w, http.StatusUnprocessableEntity, "Could not transcribe audio, please type your message")
		return
	}

	if err := validateChat(tr.Transcription, history); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := s.converse(r, tr.Transcription, history, location)
	writeJSON(w, http.StatusOK, voiceChatResponse{ChatOutcome: outcome, Transcription: tr.Transcription})
}

func (s *Server) handleListEmergencies(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, emergenciesResponse{Emergencies: s.recorder.ListEmergencies(r.Context(), userID)})
}

// converse runs the message through the chat service and records the exchange before replying.
func (s *Server) converse(r *http.Request, message string, history []ml.ChatTurn, location map[string]any) ml.ChatOutcome {
	userID, _ := auth.UserIDFromContext(r.Context())

	outcome := s.chat.ProcessMessage(r.Context(), message, history, location)

	s.recorder.Record(r.Context(), emergency.Exchange{
		UserID:  userID,
		Message: message,
		History: history,
		Outcome: outcome,
	})

	return outcome
}

func validateChat(message string, history []ml.ChatTurn) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message must not be empty")
	}
	return validateHistory(history)
}

func validateHistory(history []ml.ChatTurn) error {
	for i, turn := range history {
		if !turn.Role.Valid() {
			return fmt.Errorf("conversation_history[%d]: unknown role %q", i, turn.Role)
		}
	}
	return nil
}
