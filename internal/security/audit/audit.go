package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Logger writes structured "audit" records for state-changing requests
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit"))}
}

// LogAction records who did what to which resource
func (al *Logger) LogAction(ctx context.Context, actorID int64, role, action, resource, resourceID, status, details string) {
	al.logger.InfoContext(ctx, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("actor_id", formatActor(actorID)),
		slog.String("role", role),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", chimw.GetReqID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogDenied records a request refused before reaching a handler
func (al *Logger) LogDenied(ctx context.Context, actorID int64, role, reason string) {
	al.LogAction(ctx, actorID, role, "access_denied", "api", "", "denied", reason)
}

func formatActor(id int64) string {
	if id == 0 {
		return "anonymous"
	}
	return strconv.FormatInt(id, 10)
}
