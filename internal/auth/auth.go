package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/searchandrescuegg/medilocator/internal/dragonfly"
)

var (
	ErrUnauthenticated = errors.New("could not validate credentials")
	ErrSignInFailed    = errors.New("could not sign in anonymously")
)

const TokenTypeBearer = "bearer"

type UserStore interface {
	GetUserByDevice(ctx context.Context, deviceID string) (*dragonfly.User, error)
	CreateUser(ctx context.Context, deviceID string) (*dragonfly.User, error)
	GetUser(ctx context.Context, userID string) (*dragonfly.User, error)
	TouchUser(ctx context.Context, userID string, at time.Time) error
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

type Service struct {
	store  UserStore
	tokens *TokenIssuer
	now    func() time.Time
}

func NewService(store UserStore, tokens *TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens, now: time.Now}
}

// SignInAnonymously returns a token for the user bound to deviceID, registering the device when
// it is new. An empty deviceID always registers a fresh device.
func (s *Service) SignInAnonymously(ctx context.Context, deviceID string) (*Token, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	user, err := s.store.GetUserByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignInFailed, err.Error())
	}

	if user == nil {
		user, err = s.store.CreateUser(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSignInFailed, err.Error())
		}
		slog.Info("created anonymous user", slog.String("user_id", user.ID))
	}

	accessToken, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignInFailed, err.Error())
	}

	return &Token{AccessToken: accessToken, TokenType: TokenTypeBearer, UserID: user.ID}, nil
}

// Authenticate resolves a bearer token to the id of an existing, active user.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnauthenticated, err.Error())
	}
	if user == nil || !user.IsActive {
		return "", fmt.Errorf("%w: unknown or inactive user", ErrUnauthenticated)
	}

	if err := s.store.TouchUser(ctx, userID, s.now()); err != nil {
		slog.Warn("failed to update last activity", slog.String("error", err.Error()), slog.String("user_id", userID))
	}

	return userID, nil
}

type userIDKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}
