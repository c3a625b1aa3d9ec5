package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/taskdesk/internal/service"
)

// TaskHandler serves /api/tasks
type TaskHandler struct {
	tasks   TaskManager
	schemas *middleware.Schemas
	logger  *slog.Logger
}

// NewTaskHandler creates a new task API handler
func NewTaskHandler(tasks TaskManager, schemas *middleware.Schemas, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:   tasks,
		schemas: schemas,
		logger:  logger,
	}
}

// TaskResponse is the JSON shape of a task
type TaskResponse struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	AssignedTo       int64     `json:"assigned_to"`
	DueDate          string    `json:"due_date"`
	Status           string    `json:"status"`
	CompletionReport string    `json:"completion_report"`
	WorkedHours      *int      `json:"worked_hours"`
	Overdue          bool      `json:"overdue"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newTaskResponse(t *domain.Task, now time.Time) TaskResponse {
	return TaskResponse{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		AssignedTo:       t.AssignedTo,
		DueDate:          t.DueDate.Format(time.DateOnly),
		Status:           string(t.Status),
		CompletionReport: t.CompletionReport,
		WorkedHours:      t.WorkedHours,
		Overdue:          t.Overdue(now),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// CreateTaskRequest is the body of POST /api/tasks
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  int64  `json:"assigned_to"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
}

// UpdateTaskRequest is the body of PUT/PATCH /api/tasks/{id}. Absent fields are left untouched.
type UpdateTaskRequest struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	AssignedTo       *int64  `json:"assigned_to"`
	DueDate          *string `json:"due_date"`
	Status           *string `json:"status"`
	CompletionReport *string `json:"completion_report"`
	WorkedHours      *int    `json:"worked_hours"`
}

// TaskReportResponse is the body of GET /api/tasks/{id}/report
type TaskReportResponse struct {
	TaskID           int64  `json:"task_id"`
	CompletionReport string `json:"completion_report"`
	WorkedHours      int    `json:"worked_hours"`
}

// Routes mounts the task endpoints. The caller is expected to have resolved the actor.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.With(middleware.ValidateBody(h.schemas, middleware.SchemaTaskCreate, h.logger)).Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(middleware.ValidateBody(h.schemas, middleware.SchemaTaskUpdate, h.logger)).Put("/", h.Update)
		r.With(middleware.ValidateBody(h.schemas, middleware.SchemaTaskUpdate, h.logger)).Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/report", h.Report)
	})
	return r
}

func parseDate(field, value string, ve *domain.ValidationError) *time.Time {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		ve.Add(field, "date has wrong format, use YYYY-MM-DD")
		return nil
	}
	return &d
}

// List handles GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())

	var filter service.TaskListFilter
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.TaskStatus(s)
		filter.Status = &st
	}

	tasks, err := h.tasks.ListTasks(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	now := time.Now()
	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, newTaskResponse(t, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())

	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ve := domain.NewValidationError()
	due := parseDate("due_date", req.DueDate, ve)
	if err := ve.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), actor, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		DueDate:     due,
		Status:      domain.TaskStatus(req.Status),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTaskResponse(task, time.Now()))
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.GetTask(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(task, time.Now()))
}

// Update handles PUT and PATCH /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req UpdateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	patch := domain.TaskPatch{
		Title:            req.Title,
		Description:      req.Description,
		AssignedTo:       req.AssignedTo,
		CompletionReport: req.CompletionReport,
		WorkedHours:      req.WorkedHours,
	}
	ve := domain.NewValidationError()
	if req.DueDate != nil {
		patch.DueDate = parseDate("due_date", *req.DueDate, ve)
	}
	if req.Status != nil {
		st := domain.TaskStatus(*req.Status)
		patch.Status = &st
	}
	if err := ve.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.UpdateTask(r.Context(), middleware.ActorFromContext(r.Context()), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(task, time.Now()))
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), middleware.ActorFromContext(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report handles GET /api/tasks/{id}/report
func (h *TaskHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	report, err := h.tasks.GetTaskReport(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskReportResponse{
		TaskID:           report.TaskID,
		CompletionReport: report.CompletionReport,
		WorkedHours:      report.WorkedHours,
	})
}
