package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/searchandrescuegg/medilocator/internal/dragonfly"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	users     map[string]*dragonfly.User
	devices   map[string]string
	touched   map[string]time.Time
	failGet   error
	failTouch error
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*dragonfly.User),
		devices: make(map[string]string),
		touched: make(map[string]time.Time),
	}
}

func (m *memStore) GetUserByDevice(_ context.Context, deviceID string) (*dragonfly.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	id, ok := m.devices[deviceID]
	if !ok {
		return nil, nil
	}
	u := *m.users[id]
	return &u, nil
}

func (m *memStore) CreateUser(_ context.Context, deviceID string) (*dragonfly.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &dragonfly.User{ID: fmt.Sprintf("user-%d", len(m.users)+1), DeviceID: deviceID, IsActive: true}
	m.users[u.ID] = u
	m.devices[deviceID] = u.ID
	return u, nil
}

func (m *memStore) GetUser(_ context.Context, userID string) (*dragonfly.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) TouchUser(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTouch != nil {
		return m.failTouch
	}
	m.touched[userID] = at
	return nil
}

func TestSignInAnonymouslyReusesDevice(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, NewTokenIssuer("secret", time.Hour))
	ctx := context.Background()

	first, err := svc.SignInAnonymously(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, TokenTypeBearer, first.TokenType)
	assert.NotEmpty(t, first.AccessToken)

	second, err := svc.SignInAnonymously(ctx, " device-1 ")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)

	other, err := svc.SignInAnonymously(ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, other.UserID)
	assert.Len(t, store.users, 2)
}

func TestSignInAnonymouslyStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failGet = errors.New("connection refused")
	svc := NewService(store, NewTokenIssuer("secret", time.Hour))

	_, err := svc.SignInAnonymously(context.Background(), "device-1")
	assert.ErrorIs(t, err, ErrSignInFailed)
}

func TestAuthenticate(t *testing.T) {
	store := newMemStore()
	issuer := NewTokenIssuer("secret", time.Hour)
	svc := NewService(store, issuer)
	ctx := context.Background()

	token, err := svc.SignInAnonymously(ctx, "device-1")
	require.NoError(t, err)

	userID, err := svc.Authenticate(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, userID)
	assert.Contains(t, store.touched, userID, "last activity is refreshed")

	orphan, err := issuer.Issue("deleted-user")
	require.NoError(t, err)

	inactive := &dragonfly.User{ID: "inactive-user", IsActive: false}
	store.users[inactive.ID] = inactive
	inactiveToken, err := issuer.Issue(inactive.ID)
	require.NoError(t, err)

	foreign, err := NewTokenIssuer("other-secret", time.Hour).Issue(token.UserID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: foreign},
		{name: "unknown user", token: orphan},
		{name: "inactive user", token: inactiveToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestAuthenticateTouchFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, NewTokenIssuer("secret", time.Hour))
	ctx := context.Background()

	token, err := svc.SignInAnonymously(ctx, "device-1")
	require.NoError(t, err)

	store.failTouch = errors.New("timeout")
	userID, err := svc.Authenticate(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, userID)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	userID, ok := UserIDFromContext(WithUserID(context.Background(), "user-1"))
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)
}
