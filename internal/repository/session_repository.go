package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/infrastructure/redis"
)

const (
	sessionKeyPrefix = "session:"
	revokedKeyPrefix = "revoked:"
)

// KeyValueStore is the subset of the Redis client sessions need
type KeyValueStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Session is a console login
type Session struct {
	ID        string    `json:"-"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRepository keeps console sessions and revoked API token ids in Redis
type SessionRepository struct {
	store  KeyValueStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionRepository creates a session repository
func NewSessionRepository(store KeyValueStore, ttl time.Duration, logger *slog.Logger) *SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRepository{store: store, ttl: ttl, logger: logger}
}

// Create starts a session for userID and returns it
func (r *SessionRepository) Create(ctx context.Context, userID int64) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.store.Set(ctx, sessionKeyPrefix+s.ID, data, r.ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	r.logger.Debug("session created", slog.Int64("user_id", userID))
	return s, nil
}

// Get loads a live session. Unknown or expired ids return domain.ErrUnauthorized.
func (r *SessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, domain.ErrUnauthorized
	}
	raw, err := r.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		if redis.IsNil(err) {
			return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	s.ID = id
	return &s, nil
}

// Delete ends a session
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RevokeToken blacklists a token id until it would have expired anyway
func (r *SessionRepository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.store.Set(ctx, revokedKeyPrefix+jti, strconv.FormatInt(expiresAt.Unix(), 10), ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked
func (r *SessionRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := r.store.Exists(ctx, revokedKeyPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return revoked, nil
}
