package pulsar

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpulsar "github.com/testcontainers/testcontainers-go/modules/pulsar"
)

func TestReceiveWithoutConsumer(t *testing.T) {
	c := &PulsarClient{}

	_, err := c.ReceiveDispatch(context.Background())
	assert.ErrorIs(t, err, ErrNoConsumer)
	assert.NotPanics(t, c.Close)
}

func TestPublishAndReceiveDispatch(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run tests against a container")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := tcpulsar.Run(ctx, "apachepulsar/pulsar:3.3.0")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	brokerURL, err := ctr.BrokerURL(ctx)
	require.NoError(t, err)

	topic := "persistent://public/default/dispatches"

	subscriber, err := NewSubscriber(brokerURL, topic, "test-subscription")
	require.NoError(t, err)
	defer subscriber.Close()

	publisher, err := NewPublisher(brokerURL, topic, 10*time.Second)
	require.NoError(t, err)
	defer publisher.Close()

	sent := &DispatchEvent{
		EmergencyID:      "em-1",
		UserID:           "user-1",
		EmergencyDetails: ml.EmergencyDetails{Location: "123 Oak St", Incident: "not breathing", VictimCount: "1"},
		Confirmation:     "Help is on the way.",
		CreatedAt:        time.Date(2025, 6, 21, 10, 10, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishDispatch(ctx, sent))

	received, err := subscriber.ReceiveDispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent.EmergencyID, received.EmergencyID)
	assert.Equal(t, sent.EmergencyDetails, received.EmergencyDetails)
	assert.True(t, sent.CreatedAt.Equal(received.CreatedAt))
}
