package dragonfly

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newIntegrationClient(t *testing.T) *DragonflyClient {
	t.Helper()

	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run tests against a container")
	}

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewClient(ctx, &redis.Options{Addr: endpoint}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestUsers(t *testing.T) {
	client := newIntegrationClient(t)
	ctx := context.Background()

	missing, err := client.GetUserByDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := client.CreateUser(ctx, "device-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	again, err := client.CreateUser(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID, "second registration of a device returns the first user")

	byDevice, err := client.GetUserByDevice(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, byDevice)
	assert.Equal(t, created.ID, byDevice.ID)

	touchedAt := time.Date(2025, 6, 21, 10, 10, 0, 0, time.UTC)
	require.NoError(t, client.TouchUser(ctx, created.ID, touchedAt))

	byID, err := client.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.True(t, touchedAt.Equal(byID.LastActivity))

	assert.Error(t, client.TouchUser(ctx, "unknown", touchedAt))
}

func TestEmergenciesNewestFirst(t *testing.T) {
	client := newIntegrationClient(t)
	ctx := context.Background()

	first := &EmergencyLog{ID: "e1", UserID: "u1", Location: "123 Oak St", Status: EmergencyStatusDispatched, CreatedAt: time.Now().UTC()}
	second := &EmergencyLog{ID: "e2", UserID: "u1", Location: "Pier 39", Status: EmergencyStatusDispatched, CreatedAt: time.Now().UTC()}
	require.NoError(t, client.AppendEmergency(ctx, first))
	require.NoError(t, client.AppendEmergency(ctx, second))

	got, err := client.ListEmergencies(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e1", got[1].ID)

	none, err := client.ListEmergencies(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConversationAndClaim(t *testing.T) {
	client := newIntegrationClient(t)
	ctx := context.Background()

	require.NoError(t, client.AppendConversation(ctx, &ConversationLog{ID: "c1", UserID: "u1", UserMessage: "help", AssistantReply: "Where are you?"}))
	require.NoError(t, client.AppendConversation(ctx, &ConversationLog{ID: "c2", UserID: "u1", UserMessage: "5th and Pine", AssistantReply: "How many people?"}))

	conversation, err := listJSON[ConversationLog](ctx, client.client, "conversations:u1")
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, "c1", conversation[0].ID)

	ok, err := client.Claim(ctx, "dispatch:u1:42", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Claim(ctx, "dispatch:u1:42", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := client.Get(ctx, "slack_thread:u1")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, client.Set(ctx, "slack_thread:u1", time.Minute, "1718960000.000100"))
	value, err = client.Get(ctx, "slack_thread:u1")
	require.NoError(t, err)
	assert.Equal(t, "1718960000.000100", value)
}

func TestCreateUserRebindsInactiveDevice(t *testing.T) {
	client := newIntegrationClient(t)
	ctx := context.Background()

	original, err := client.CreateUser(ctx, "device-1")
	require.NoError(t, err)

	original.IsActive = false
	require.NoError(t, client.putUser(ctx, original))

	missing, err := client.GetUserByDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, missing, "an inactive user is not returned for its device")

	fresh, err := client.CreateUser(ctx, "device-1")
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, fresh.ID)
	assert.True(t, fresh.IsActive)

	byDevice, err := client.GetUserByDevice(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, byDevice)
	assert.Equal(t, fresh.ID, byDevice.ID)

	again, err := client.CreateUser(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, again.ID)
}

func TestCreateUserRebindsDeviceOfMissingUser(t *testing.T) {
	client := newIntegrationClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "device:device-2", 0, "deleted-user"))

	created, err := client.CreateUser(ctx, "device-2")
	require.NoError(t, err)
	assert.NotEqual(t, "deleted-user", created.ID)

	byDevice, err := client.GetUserByDevice(ctx, "device-2")
	require.NoError(t, err)
	require.NotNil(t, byDevice)
	assert.Equal(t, created.ID, byDevice.ID)
}

func TestPing(t *testing.T) {
	client := newIntegrationClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}
