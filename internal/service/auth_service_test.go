package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/repository"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
)

func newAuthFixture(t *testing.T) (*AuthService, memUserRepo) {
	t.Helper()
	users := memUserRepo{newMemStore()}
	for _, seed := range []struct {
		name string
		role domain.Role
	}{{"root", domain.RoleSuperadmin}, {"ada", domain.RoleAdmin}, {"uma", domain.RoleUser}} {
		hash, err := auth.HashPassword("Password123")
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if err := users.Create(context.Background(), &domain.User{Username: seed.name, PasswordHash: hash, Role: seed.role}, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	sessions := repository.NewSessionRepository(newMemKV(), time.Hour, nil)
	svc := NewAuthService(users, auth.NewTokenManager("secret", "taskdesk"), sessions, 15*time.Minute, nil)
	return svc, users
}

func TestLoginAndResolveToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	lr, err := svc.Login(ctx, "uma", "Password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if lr.Token == "" || lr.TokenType != "Bearer" || lr.ExpiresIn != 900 {
		t.Fatalf("unexpected login result %+v", lr)
	}

	user, claims, err := svc.ResolveToken(ctx, lr.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user.Username != "uma" || claims.UserID != user.ID {
		t.Fatalf("unexpected actor %+v", user)
	}

	if _, err := svc.Login(ctx, "uma", "Wrong"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "Password123"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	lr, err := svc.Login(ctx, "ada", "Password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, claims, err := svc.ResolveToken(ctx, lr.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := svc.ResolveToken(ctx, lr.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestResolveTokenForDeletedAccount(t *testing.T) {
	svc, users := newAuthFixture(t)
	ctx := context.Background()

	lr, _ := svc.Login(ctx, "uma", "Password123")
	if err := users.Delete(ctx, lr.User.ID, func(*domain.User) error { return nil }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := svc.ResolveToken(ctx, lr.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestConsoleLoginRestrictedToAdmins(t *testing.T) {
	svc, users := newAuthFixture(t)
	ctx := context.Background()

	if _, _, err := svc.ConsoleLogin(ctx, "uma", "Password123"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for user, got %v", err)
	}

	admin, session, err := svc.ConsoleLogin(ctx, "ada", "Password123")
	if err != nil {
		t.Fatalf("console login: %v", err)
	}
	resolved, err := svc.ResolveSession(ctx, session.ID)
	if err != nil || resolved.ID != admin.ID {
		t.Fatalf("resolve session: %+v %v", resolved, err)
	}

	// demoted after login
	if _, err := users.Update(ctx, admin.ID, func(u *domain.User, _ domain.UserRefs, _ domain.UserLookup) error {
		u.Role = domain.RoleUser
		return nil
	}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if _, err := svc.ResolveSession(ctx, session.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after demotion, got %v", err)
	}

	if err := svc.ConsoleLogout(ctx, session.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.ResolveSession(ctx, session.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}
