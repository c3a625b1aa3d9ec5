package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/events"
	"github.com/aryan0dhankhar/taskdesk/internal/security"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
	"github.com/aryan0dhankhar/taskdesk/internal/security/middleware"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second

	wsActorRefresh = 30 * time.Second
)

// TaskVisibility decides whether an actor may see a task
type TaskVisibility interface {
	Can(actor *domain.User, action security.Action, res security.Resource) bool
}

// EventsHandler streams task change events over a WebSocket. Each
// connection only receives events for tasks its actor may view.
type EventsHandler struct {
	subscriber      events.Subscriber
	tokens          middleware.TokenResolver
	authz           TaskVisibility
	allowedOrigins  []string
	// how often an open stream re-resolves its token, so a demoted,
	// deleted or logged out actor stops receiving events
	refreshInterval time.Duration
	logger          *slog.Logger
}

// NewEventsHandler creates a new task events handler
func NewEventsHandler(
	subscriber events.Subscriber,
	tokens middleware.TokenResolver,
	authz TaskVisibility,
	allowedOrigins []string,
	logger *slog.Logger,
) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		subscriber:      subscriber,
		tokens:          tokens,
		authz:           authz,
		allowedOrigins:  allowedOrigins,
		refreshInterval: wsActorRefresh,
		logger:          logger,
	}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *EventsHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// authenticate accepts the bearer header or, for browsers, a ?token= query
// parameter. The token is returned so the stream can re-resolve it later.
func (h *EventsHandler) authenticate(r *http.Request) (string, *domain.User, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		t, err := auth.ExtractToken(header)
		if err != nil {
			return "", nil, domain.ErrUnauthorized
		}
		token = t
	}
	if token == "" {
		return "", nil, domain.ErrUnauthorized
	}
	actor, _, err := h.tokens.ResolveToken(r.Context(), token)
	return token, actor, err
}

// ServeHTTP handles GET /ws/tasks
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, actor, err := h.authenticate(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		h.logger.Error("failed to subscribe to task events", slog.String("error", err.Error()))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "events unavailable"),
			time.Now().Add(wsWriteWait))
		return
	}

	h.logger.Info("task event stream opened", slog.Int64("actor_id", actor.ID))
	defer h.logger.Info("task event stream closed", slog.Int64("actor_id", actor.ID))

	// reader: handles pongs and notices the client going away
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.pump(ctx, ws, token, actor, stream); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("task event stream ended", slog.String("error", err.Error()))
	}
}

func (h *EventsHandler) pump(ctx context.Context, ws *websocket.Conn, token string, actor *domain.User, stream <-chan events.TaskEvent) error {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	refresh := time.NewTicker(h.refreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		case <-refresh.C:
			current, _, err := h.tokens.ResolveToken(ctx, token)
			if err != nil {
				h.logger.Info("closing task event stream, actor no longer valid",
					slog.Int64("actor_id", actor.ID),
					slog.String("error", err.Error()),
				)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"),
					time.Now().Add(wsWriteWait))
				return err
			}
			actor = current
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			if !h.authz.Can(actor, security.ActionView, security.TaskResource(event.Task())) {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(event); err != nil {
				return err
			}
		}
	}
}
