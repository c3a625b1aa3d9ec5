package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/infrastructure/redis"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (m *memKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newMemKV(), time.Hour, nil)

	s, err := repo.Create(ctx, 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != 7 || got.ID != s.ID {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, s.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after delete, got %v", err)
	}
}

func TestSessionGetEmptyID(t *testing.T) {
	repo := NewSessionRepository(newMemKV(), time.Hour, nil)
	if _, err := repo.Get(context.Background(), ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenRevocation(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newMemKV(), time.Hour, nil)

	if err := repo.RevokeToken(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := repo.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatalf("expected token to be revoked")
	}
	if revoked, _ := repo.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("unexpected revocation")
	}

	if err := repo.RevokeToken(ctx, "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	if revoked, _ := repo.IsRevoked(ctx, "old"); revoked {
		t.Fatalf("already-expired tokens need no revocation entry")
	}
}
