package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/taskdesk/internal/repository"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
)

// SessionStore persists console sessions and revoked API tokens
type SessionStore interface {
	Create(ctx context.Context, userID int64) (*repository.Session, error)
	Get(ctx context.Context, id string) (*repository.Session, error)
	Delete(ctx context.Context, id string) error
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// LoginResult represents login response
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresIn int // seconds
	TokenType string
}

// AuthService handles authentication for both access surfaces
type AuthService struct {
	userRepo domain.UserRepository
	tokens   *auth.TokenManager
	sessions SessionStore
	tokenTTL time.Duration
	logger   *slog.Logger

	// compared against when the username is unknown so both paths cost a bcrypt check
	dummyHash string
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	tokens *auth.TokenManager,
	sessions SessionStore,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	dummy, _ := auth.HashPassword("taskdesk-dummy-password")

	return &AuthService{
		userRepo:  userRepo,
		tokens:    tokens,
		sessions:  sessions,
		tokenTTL:  tokenTTL,
		logger:    logger,
		dummyHash: dummy,
	}
}

func (s *AuthService) authenticate(ctx context.Context, surface, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		metrics.ObserveLogin(surface, "invalid")
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrUnauthorized)
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		auth.CheckPassword(s.dummyHash, password)
		s.logger.Info("login attempt for unknown user", slog.String("username", username), slog.String("surface", surface))
		metrics.ObserveLogin(surface, "failed")
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		s.logger.Info("login failed with wrong password", slog.Int64("user_id", user.ID), slog.String("surface", surface))
		metrics.ObserveLogin(surface, "failed")
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	return user, nil
}

// Login verifies credentials and issues an API bearer token
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.authenticate(ctx, "api", username, password)
	if err != nil {
		return nil, err
	}

	token, _, err := s.tokens.GenerateToken(user.ID, string(user.Role), s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	metrics.ObserveLogin("api", "ok")
	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return &LoginResult{
		User:      user,
		Token:     token,
		ExpiresIn: int(s.tokenTTL.Seconds()),
		TokenType: "Bearer",
	}, nil
}

// Logout revokes the presented token until it expires
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return domain.ErrUnauthorized
	}
	expires := time.Now().Add(s.tokenTTL)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := s.sessions.RevokeToken(ctx, claims.ID, expires); err != nil {
		return err
	}
	s.logger.Info("user logged out", slog.Int64("user_id", claims.UserID))
	return nil
}

// ResolveToken validates a bearer token and loads its user
func (s *AuthService) ResolveToken(ctx context.Context, token string) (*domain.User, *auth.Claims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, fmt.Errorf("token revoked: %w", domain.ErrUnauthorized)
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("account no longer exists: %w", domain.ErrUnauthorized)
		}
		return nil, nil, err
	}
	return user, claims, nil
}

// ConsoleLogin verifies credentials and starts a console session. The
// console is for admins and superadmins only.
func (s *AuthService) ConsoleLogin(ctx context.Context, username, password string) (*domain.User, *repository.Session, error) {
	user, err := s.authenticate(ctx, "console", username, password)
	if err != nil {
		return nil, nil, err
	}
	if user.Role != domain.RoleAdmin && user.Role != domain.RoleSuperadmin {
		metrics.ObserveLogin("console", "forbidden")
		s.logger.Info("console login refused for role", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
		return nil, nil, fmt.Errorf("console access requires an admin account: %w", domain.ErrForbidden)
	}

	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	metrics.ObserveLogin("console", "ok")
	s.logger.Info("console login", slog.Int64("user_id", user.ID))
	return user, session, nil
}

// ConsoleLogout ends a console session
func (s *AuthService) ConsoleLogout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// ResolveSession loads the user behind a console session. Accounts that
// lost admin rights since logging in are rejected.
func (s *AuthService) ResolveSession(ctx context.Context, sessionID string) (*domain.User, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("account no longer exists: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if user.Role != domain.RoleAdmin && user.Role != domain.RoleSuperadmin {
		return nil, fmt.Errorf("console access revoked: %w", domain.ErrUnauthorized)
	}
	return user, nil
}
