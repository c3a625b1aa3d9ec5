package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/repository"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
	"github.com/aryan0dhankhar/taskdesk/internal/service"
)

// TaskManager is the task lifecycle as seen by the access surfaces
type TaskManager interface {
	CreateTask(ctx context.Context, actor *domain.User, in service.CreateTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, actor *domain.User, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, actor *domain.User, filter service.TaskListFilter) ([]*domain.Task, error)
	UpdateTask(ctx context.Context, actor *domain.User, id int64, patch domain.TaskPatch) (*domain.Task, error)
	DeleteTask(ctx context.Context, actor *domain.User, id int64) error
	GetTaskReport(ctx context.Context, actor *domain.User, id int64) (*service.TaskReport, error)
	AssignableUsers(ctx context.Context, actor *domain.User) ([]*domain.User, error)
}

// UserManager is identity management as seen by the access surfaces
type UserManager interface {
	CreateUser(ctx context.Context, actor *domain.User, in service.CreateUserInput) (*domain.User, error)
	EditUser(ctx context.Context, actor *domain.User, id int64, in service.EditUserInput) (*domain.User, error)
	DeleteUser(ctx context.Context, actor *domain.User, id int64) error
	ListUsers(ctx context.Context, actor *domain.User, filter domain.UserFilter) ([]*domain.User, error)
	GetUser(ctx context.Context, actor *domain.User, id int64) (*domain.User, error)
}

// Authenticator covers login and logout on both surfaces
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	ConsoleLogin(ctx context.Context, username, password string) (*domain.User, *repository.Session, error)
	ConsoleLogout(ctx context.Context, sessionID string) error
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFromError maps core errors to HTTP status codes
func statusFromError(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotCompleted), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func errorBody(err error, status int) ErrorResponse {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return ErrorResponse{Error: "validation failed", Fields: ve.Fields}
	case status == http.StatusInternalServerError:
		return ErrorResponse{Error: "internal error"}
	case status == http.StatusUnauthorized:
		return ErrorResponse{Error: "unauthorized"}
	case status == http.StatusForbidden:
		return ErrorResponse{Error: "you do not have permission to perform this action"}
	case status == http.StatusNotFound:
		return ErrorResponse{Error: "not found"}
	case errors.Is(err, domain.ErrNotCompleted):
		return ErrorResponse{Error: "task is not completed"}
	}
	return ErrorResponse{Error: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as JSON. Only unexpected errors are logged at error level.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, errorBody(err, status))
}

// pathID parses the {id} URL parameter. Malformed ids are reported as not found.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.FieldError("non_field", "invalid request body")
	}
	return nil
}
