package dragonfly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix         = "user:%s"
	deviceKeyPrefix       = "device:%s"
	conversationKeyPrefix = "conversations:%s"
	emergencyKeyPrefix    = "emergencies:%s"
)

const DefaultRequestTimeout = time.Second

type DragonflyClient struct {
	client         *redis.Client
	requestTimeout time.Duration
	now            func() time.Time
}

func NewClient(ctx context.Context, opts *redis.Options, requestTimeout time.Duration) (*DragonflyClient, error) {
	redisClient := redis.NewClient(opts)
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	return &DragonflyClient{client: redisClient, requestTimeout: requestTimeout, now: time.Now}, nil
}

func (d *DragonflyClient) Close() error {
	return d.client.Close()
}

func (d *DragonflyClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()
	return d.client.Ping(ctx).Err()
}

// CreateUser registers a new active anonymous user bound to deviceID. When another request
// registered the same device first and that user is active, it is returned instead; a device
// bound to an inactive or missing user is rebound to the new one.
func (d *DragonflyClient) CreateUser(ctx context.Context, deviceID string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	now := d.now().UTC()
	user := User{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}

	// the user record is written before the device points at it
	if err := d.putUser(ctx, &user); err != nil {
		return nil, err
	}

	deviceKey := fmt.Sprintf(deviceKeyPrefix, deviceID)
	claimed, err := d.client.SetNX(ctx, deviceKey, user.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim device %s: %w", deviceID, err)
	}
	if claimed {
		return &user, nil
	}

	currentID, err := d.client.Get(ctx, deviceKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get user for device %s: %w", deviceID, err)
	}

	if currentID != "" {
		existing, err := d.user(ctx, currentID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.IsActive {
			d.discardUser(ctx, user.ID)
			return existing, nil
		}
	}

	rebound, err := d.rebindDevice(ctx, deviceKey, currentID, user.ID)
	if err != nil {
		return nil, err
	}
	if !rebound {
		// another request rebound the device first
		d.discardUser(ctx, user.ID)
		return d.activeUserByDevice(ctx, deviceID)
	}

	slog.Info("rebound device to a new user", slog.String("user_id", user.ID), slog.String("previous_user_id", currentID))
	return &user, nil
}

func (d *DragonflyClient) discardUser(ctx context.Context, userID string) {
	if err := d.client.Del(ctx, fmt.Sprintf(userKeyPrefix, userID)).Err(); err != nil {
		slog.Warn("failed to discard unused user", slog.String("error", err.Error()), slog.String("user_id", userID))
	}
}

// rebindDevice points deviceKey at userID if it still holds previous ("" for a deleted key).
func (d *DragonflyClient) rebindDevice(ctx context.Context, deviceKey, previous, userID string) (bool, error) {
	rebound := false
	err := d.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, deviceKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != previous {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, deviceKey, userID, 0)
			return nil
		})
		if err != nil {
			return err
		}
		rebound = true
		return nil
	}, deviceKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to rebind device: %w", err)
	}
	return rebound, nil
}

func (d *DragonflyClient) activeUserByDevice(ctx context.Context, deviceID string) (*User, error) {
	user, err := d.userByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("device %s has no active user", deviceID)
	}
	return user, nil
}

// GetUserByDevice returns the active user bound to deviceID, or nil when there is none.
func (d *DragonflyClient) GetUserByDevice(ctx context.Context, deviceID string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	user, err := d.userByDevice(ctx, deviceID)
	if err != nil || user == nil || !user.IsActive {
		return nil, err
	}
	return user, nil
}

// GetUser returns the user with the given id, or nil when it does not exist.
func (d *DragonflyClient) GetUser(ctx context.Context, userID string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	return d.user(ctx, userID)
}

// TouchUser records the time of the user's latest authenticated request.
func (d *DragonflyClient) TouchUser(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	user, err := d.user(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", userID)
	}

	user.LastActivity = at.UTC()
	return d.putUser(ctx, user)
}

func (d *DragonflyClient) AppendConversation(ctx context.Context, entry *ConversationLog) error {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation log: %w", err)
	}

	if err := d.client.RPush(ctx, fmt.Sprintf(conversationKeyPrefix, entry.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to append conversation log for user %s: %w", entry.UserID, err)
	}
	return nil
}

// AppendEmergency stores an emergency log; the list is kept newest first.
func (d *DragonflyClient) AppendEmergency(ctx context.Context, entry *EmergencyLog) error {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal emergency log: %w", err)
	}

	if err := d.client.LPush(ctx, fmt.Sprintf(emergencyKeyPrefix, entry.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to append emergency log for user %s: %w", entry.UserID, err)
	}
	return nil
}

// ListEmergencies returns the user's emergencies, newest first.
func (d *DragonflyClient) ListEmergencies(ctx context.Context, userID string) ([]EmergencyLog, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	return listJSON[EmergencyLog](ctx, d.client, fmt.Sprintf(emergencyKeyPrefix, userID))
}

// Claim sets key only if it does not exist yet and reports whether this call set it.
func (d *DragonflyClient) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	ok, err := d.client.SetNX(ctx, key, d.now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim key %s: %w", key, err)
	}
	return ok, nil
}

func (d *DragonflyClient) Set(ctx context.Context, key string, ttl time.Duration, value interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	return d.client.Set(ctx, key, value, ttl).Err()
}

func (d *DragonflyClient) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	value, err := d.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get value for key %s: %w", key, err)
	}
	return value, nil
}

func (d *DragonflyClient) userByDevice(ctx context.Context, deviceID string) (*User, error) {
	userID, err := d.client.Get(ctx, fmt.Sprintf(deviceKeyPrefix, deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user for device %s: %w", deviceID, err)
	}

	return d.user(ctx, userID)
}

func (d *DragonflyClient) user(ctx context.Context, userID string) (*User, error) {
	payload, err := d.client.Get(ctx, fmt.Sprintf(userKeyPrefix, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	var user User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}
	return &user, nil
}

func (d *DragonflyClient) putUser(ctx context.Context, user *User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := d.client.Set(ctx, fmt.Sprintf(userKeyPrefix, user.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store user %s: %w", user.ID, err)
	}
	return nil
}

func listJSON[T any](ctx context.Context, client *redis.Client, key string) ([]T, error) {
	values, err := client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", key, err)
	}

	out := make([]T, 0, len(values))
	for _, v := range values {
		var item T
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry of %s: %w", key, err)
		}
		out = append(out, item)
	}
	return out, nil
}
