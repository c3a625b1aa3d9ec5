package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/security/audit"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
	"github.com/aryan0dhankhar/taskdesk/internal/security/ratelimit"
)

type ActorContextKey struct{}
type ClaimsContextKey struct{}
type SessionContextKey struct{}

// TokenResolver turns a bearer token into the acting user
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*domain.User, *auth.Claims, error)
}

// SessionResolver turns a console session id into the acting user
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*domain.User, error)
}

// WithActor stores the acting user on ctx
func WithActor(ctx context.Context, actor *domain.User) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, actor)
}

// ActorFromContext returns the acting user, or nil for anonymous requests
func ActorFromContext(ctx context.Context) *domain.User {
	if a, ok := ctx.Value(ActorContextKey{}).(*domain.User); ok {
		return a
	}
	return nil
}

// ClaimsFromContext returns the token claims of an API request
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// SessionIDFromContext returns the console session id
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(SessionContextKey{}).(string); ok {
		return s
	}
	return ""
}

// JWTMiddleware requires a valid bearer token and puts the actor in the context
func JWTMiddleware(resolver TokenResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid auth")
				return
			}

			actor, claims, err := resolver.ResolveToken(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					log.Debug("token rejected", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				log.Error("failed to resolve token", slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = context.WithValue(ctx, ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware requires a console session cookie. Anonymous browsers are
// redirected to loginPath with the original location in "next".
func SessionMiddleware(resolver SessionResolver, cookieName, loginPath string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			redirect := func() {
				target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
			}

			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				redirect()
				return
			}

			actor, err := resolver.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
					redirect()
					return
				}
				log.Error("failed to resolve session", slog.String("error", err.Error()))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = context.WithValue(ctx, SessionContextKey{}, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles per actor, falling back to client IP for
// anonymous requests
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if actor := ActorFromContext(r.Context()); actor != nil {
				key = "user:" + strconv.FormatInt(actor.ID, 10)
			}

			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("key", key), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimit applies a strict per-IP limit to credential endpoints
func LoginRateLimit(limiter *ratelimit.Limiter, maxAttempts int, window time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			if !limiter.AllowStrict("login:"+ip, maxAttempts, window) {
				log.Warn("login rate limit exceeded", slog.String("ip", ip))
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every state-changing request with its outcome
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			var actorID int64
			role := "anonymous"
			if actor := ActorFromContext(r.Context()); actor != nil {
				actorID = actor.ID
				role = string(actor.Role)
			}

			resource := r.URL.Path
			resourceID := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					resource = p
				}
				resourceID = rctx.URLParam("id")
			}

			status := "ok"
			if rec.status >= 400 {
				status = "failed"
			}
			auditLog.LogAction(r.Context(), actorID, role, r.Method, resource, resourceID, status, strconv.Itoa(rec.status))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
