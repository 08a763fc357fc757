package pulsar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/searchandrescuegg/medilocator/internal/ml"
)

var ErrNoConsumer = errors.New("pulsar client has no consumer")

type PulsarClient struct {
	client   pulsar.Client
	consumer pulsar.Consumer
	producer pulsar.Producer
}

// DispatchEvent is published for every recorded emergency dispatch.
type DispatchEvent struct {
	EmergencyID      string              `json:"emergency_id"`
	UserID           string              `json:"user_id"`
	EmergencyDetails ml.EmergencyDetails `json:"emergency_details"`
	Confirmation     string              `json:"confirmation"`
	CreatedAt        time.Time           `json:"created_at"`
}

func newClient(url string, operationTimeout time.Duration) (pulsar.Client, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:              url,
		OperationTimeout: operationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pulsar client: %w", err)
	}
	return client, nil
}

// NewPublisher creates a client that only produces dispatch events to topic.
func NewPublisher(url, topic string, operationTimeout time.Duration) (*PulsarClient, error) {
	client, err := newClient(url, operationTimeout)
	if err != nil {
		return nil, err
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic:       topic,
		SendTimeout: operationTimeout,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &PulsarClient{
		client:   client,
		producer: producer,
	}, nil
}

// NewSubscriber creates a client that only consumes dispatch events from topic.
func NewSubscriber(url, topic, subscription string) (*PulsarClient, error) {
	client, err := newClient(url, 0)
	if err != nil {
		return nil, err
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscription,
		Type:             pulsar.Shared,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &PulsarClient{
		client:   client,
		consumer: consumer,
	}, nil
}

func (c *PulsarClient) PublishDispatch(ctx context.Context, event *DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch event: %w", err)
	}

	_, err = c.producer.Send(ctx, &pulsar.ProducerMessage{
		Key:       event.UserID,
		Payload:   payload,
		EventTime: event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to send dispatch event: %w", err)
	}

	return nil
}

// ReceiveDispatch blocks until the next dispatch event arrives. Undecodable messages are nacked.
func (c *PulsarClient) ReceiveDispatch(ctx context.Context) (*DispatchEvent, error) {
	if c.consumer == nil {
		return nil, ErrNoConsumer
	}

	msg, err := c.consumer.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	var event DispatchEvent
	if err := json.Unmarshal(msg.Payload(), &event); err != nil {
		c.consumer.Nack(msg)
		return nil, fmt.Errorf("failed to unmarshal dispatch event %s: %w", msg.ID().String(), err)
	}

	err = c.consumer.Ack(msg)
	if err != nil {
		slog.Warn("failed to ack message", slog.String("error", err.Error()))
	}

	return &event, nil
}

func (c *PulsarClient) Close() {
	if c.producer != nil {
		c.producer.Close()
	}
	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
}
