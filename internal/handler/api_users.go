package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/taskdesk/internal/service"
)

// UserHandler serves /api/users
type UserHandler struct {
	users   UserManager
	schemas *middleware.Schemas
	logger  *slog.Logger
}

// NewUserHandler creates a new user API handler
func NewUserHandler(users UserManager, schemas *middleware.Schemas, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		users:   users,
		schemas: schemas,
		logger:  logger,
	}
}

// UserResponse is the JSON shape of an account. The password hash never leaves the server.
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	AdminRef  *int64    `json:"admin_ref"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		AdminRef:  u.AdminID,
		CreatedAt: u.CreatedAt,
	}
}

// CreateUserRequest is the body of POST /api/users
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	AdminRef *int64 `json:"admin_ref"`
}

// optionalID distinguishes an absent admin_ref from an explicit null
type optionalID struct {
	Set   bool
	Value *int64
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// EditUserRequest is the body of PATCH /api/users/{id}
type EditUserRequest struct {
	Username *string    `json:"username"`
	Password *string    `json:"password"`
	Role     *string    `json:"role"`
	AdminRef optionalID `json:"admin_ref"`
}

// Routes mounts the user endpoints
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.With(middleware.ValidateBody(h.schemas, middleware.SchemaUserCreate, h.logger)).Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(middleware.ValidateBody(h.schemas, middleware.SchemaUserUpdate, h.logger)).Patch("/", h.Edit)
		r.With(middleware.ValidateBody(h.schemas, middleware.SchemaUserUpdate, h.logger)).Put("/", h.Edit)
		r.Delete("/", h.Delete)
	})
	return r
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter domain.UserFilter
	if s := r.URL.Query().Get("role"); s != "" {
		role := domain.Role(s)
		if !role.Valid() {
			writeError(w, r, h.logger, domain.FieldError("role", "unknown role"))
			return
		}
		filter.Role = &role
	}

	users, err := h.users.ListUsers(r.Context(), middleware.ActorFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, newUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), middleware.ActorFromContext(r.Context()), service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Role:     domain.Role(req.Role),
		AdminID:  req.AdminRef,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

// Get handles GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.users.GetUser(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// Edit handles PATCH and PUT /api/users/{id}
func (h *UserHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req EditUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	in := service.EditUserInput{
		Username: req.Username,
		Password: req.Password,
		SetAdmin: req.AdminRef.Set,
		AdminID:  req.AdminRef.Value,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		in.Role = &role
	}

	user, err := h.users.EditUser(r.Context(), middleware.ActorFromContext(r.Context()), id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// Delete handles DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.users.DeleteUser(r.Context(), middleware.ActorFromContext(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
