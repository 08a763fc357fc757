package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/searchandrescuegg/medilocator/internal/telemetry"
)

const DefaultTimeout = 30 * time.Second

type Service struct {
	completer ml.ChatCompleter
	timeout   time.Duration
	metrics   *telemetry.Metrics
}

func NewService(completer ml.ChatCompleter, timeout time.Duration, metrics *telemetry.Metrics) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Service{
		completer: completer,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// FallbackOutcome is the reply given when the model cannot be reached.
func FallbackOutcome() ml.ChatOutcome {
	return ml.ChatOutcome{
		Reply:             FallbackReply,
		EmergencyDetails:  nil,
		DispatchTriggered: false,
		RequiresLocation:  false,
	}
}

// ProcessMessage runs one user message through the model. It never fails: provider errors,
// timeouts and cancellation all yield FallbackOutcome.
func (s *Service) ProcessMessage(ctx context.Context, message string, history []ml.ChatTurn, location map[string]any) ml.ChatOutcome {
	messages := ComposeMessages(message, history, location)

	completionCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.completer.ChatCompletion(completionCtx, messages)
	if err != nil {
		attrs := []any{slog.String("error", err.Error()), slog.Int("turns", len(messages))}
		if errors.Is(err, context.DeadlineExceeded) {
			attrs = append(attrs, slog.Duration("timeout", s.timeout))
		}
		slog.Error("chat completion failed, returning fallback reply", attrs...)

		s.metrics.Fallback(ctx)
		s.metrics.MessageProcessed(ctx, "fallback")
		return FallbackOutcome()
	}

	slog.Debug("received chat completion", slog.String("reply", raw))

	outcome, err := interpretReply(raw)
	if err != nil {
		slog.Warn("could not parse dispatch payload, treating as normal reply", slog.String("error", err.Error()))
		s.metrics.MalformedPayload(ctx)
	}

	if outcome.DispatchTriggered {
		slog.Info("dispatch triggered",
			slog.String("location", outcome.EmergencyDetails.Location),
			slog.String("incident", outcome.EmergencyDetails.Incident),
			slog.String("victim_count", outcome.EmergencyDetails.VictimCount),
		)
		s.metrics.MessageProcessed(ctx, "dispatch")
	} else {
		s.metrics.MessageProcessed(ctx, "normal")
	}

	return outcome
}
