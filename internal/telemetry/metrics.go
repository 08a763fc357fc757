package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MeterName = "github.com/searchandrescuegg/medilocator"

// Metrics holds the counters recorded along the chat path. A nil *Metrics records nothing.
type Metrics struct {
	messages            metric.Int64Counter
	dispatches          metric.Int64Counter
	fallbacks           metric.Int64Counter
	malformedPayloads   metric.Int64Counter
	persistenceFailures metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.messages, err = meter.Int64Counter("medilocator.chat.messages",
		metric.WithDescription("Chat messages processed, by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}
	if m.dispatches, err = meter.Int64Counter("medilocator.chat.dispatches",
		metric.WithDescription("Emergency dispatches recorded")); err != nil {
		return nil, fmt.Errorf("failed to create dispatches counter: %w", err)
	}
	if m.fallbacks, err = meter.Int64Counter("medilocator.chat.fallbacks",
		metric.WithDescription("Replies replaced by the safety fallback after a provider failure")); err != nil {
		return nil, fmt.Errorf("failed to create fallbacks counter: %w", err)
	}
	if m.malformedPayloads, err = meter.Int64Counter("medilocator.chat.malformed_payloads",
		metric.WithDescription("Structured dispatch replies that failed to parse")); err != nil {
		return nil, fmt.Errorf("failed to create malformed payloads counter: %w", err)
	}
	if m.persistenceFailures, err = meter.Int64Counter("medilocator.persistence.failures",
		metric.WithDescription("Failed writes to the conversation or emergency log, by operation")); err != nil {
		return nil, fmt.Errorf("failed to create persistence failures counter: %w", err)
	}

	return &m, nil
}

func (m *Metrics) MessageProcessed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Dispatched(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1)
}

func (m *Metrics) Fallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1)
}

func (m *Metrics) MalformedPayload(ctx context.Context) {
	if m == nil {
		return
	}
	m.malformedPayloads.Add(ctx, 1)
}

func (m *Metrics) PersistenceFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.persistenceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
