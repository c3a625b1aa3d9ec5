package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/taskdesk/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

var consolePages = []string{
	"login", "error", "dashboard", "users", "user_form", "tasks", "task_detail", "task_form",
}

// ConsoleConfig controls the console session cookie
type ConsoleConfig struct {
	CookieName   string
	SecureCookie bool
	SessionTTL   time.Duration
}

// ConsoleHandler serves the server-rendered admin console under /console
type ConsoleHandler struct {
	auth   Authenticator
	tasks  TaskManager
	users  UserManager
	cfg    ConsoleConfig
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewConsoleHandler parses the console templates
func NewConsoleHandler(auth Authenticator, tasks TaskManager, users UserManager, cfg ConsoleConfig, logger *slog.Logger) (*ConsoleHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "taskdesk_session"
	}

	funcs := template.FuncMap{
		"date":      func(t time.Time) string { return t.Format(time.DateOnly) },
		"overdue":   func(t *domain.Task) bool { return t.Overdue(time.Now()) },
		"userName":  userName,
		"adminName": adminName,
	}

	pages := make(map[string]*template.Template, len(consolePages))
	for _, name := range consolePages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse console template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &ConsoleHandler{
		auth:   auth,
		tasks:  tasks,
		users:  users,
		cfg:    cfg,
		pages:  pages,
		logger: logger,
	}, nil
}

func userName(users []*domain.User, id int64) string {
	for _, u := range users {
		if u.ID == id {
			return u.Username
		}
	}
	return "#" + strconv.FormatInt(id, 10)
}

func adminName(users []*domain.User, id *int64) string {
	if id == nil {
		return ""
	}
	return userName(users, *id)
}

type pageData struct {
	Title     string
	Actor     *domain.User
	Flash     string
	Next      string
	Action    string
	Editing   bool
	Form      map[string]string
	Errors    map[string]string
	Counts    map[string]int
	Tasks     []*domain.Task
	Task      *domain.Task
	Report    *service.TaskReport
	Users     []*domain.User
	Admins    []*domain.User
	Assignees []*domain.User
	Roles     []domain.Role
	Statuses  []domain.TaskStatus
}

var (
	allRoles    = []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleSuperadmin}
	allStatuses = []domain.TaskStatus{domain.TaskPending, domain.TaskInProgress, domain.TaskCompleted}
)

// Routes mounts the console. session resolves the actor for every page but
// the login form; loginLimit throttles credential posts.
func (h *ConsoleHandler) Routes(session, loginLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(loginLimit).Get("/login", h.LoginForm)
	r.With(loginLimit).Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Post("/logout", h.Logout)
		r.Get("/", h.Dashboard)

		r.Get("/users", h.Users)
		r.Get("/users/new", h.NewUser)
		r.Post("/users", h.CreateUser)
		r.Get("/users/{id}/edit", h.EditUserForm)
		r.Post("/users/{id}", h.EditUser)
		r.Post("/users/{id}/delete", h.DeleteUser)

		r.Get("/tasks", h.Tasks)
		r.Get("/tasks/new", h.NewTask)
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/{id}", h.TaskDetail)
		r.Get("/tasks/{id}/edit", h.EditTaskForm)
		r.Post("/tasks/{id}", h.EditTask)
		r.Post("/tasks/{id}/delete", h.DeleteTask)
	})
	return r
}

func (h *ConsoleHandler) render(w http.ResponseWriter, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("failed to render console page", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError shows a core error as a page. Validation errors are handled by the forms.
func (h *ConsoleHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status == http.StatusUnauthorized {
		http.Redirect(w, r, "/console/login", http.StatusSeeOther)
		return
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("console request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	title := errorBody(err, status).Error
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		title = strings.Join(sortedMessages(ve.Fields), " ")
	}
	h.render(w, status, "error", pageData{Title: title, Actor: middleware.ActorFromContext(r.Context())})
}

func sortedMessages(fields map[string]string) []string {
	msgs := make([]string, 0, len(fields))
	for _, k := range []string{"non_field", "username", "role", "admin_ref", "assigned_to", "status"} {
		if m, ok := fields[k]; ok {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		for _, m := range fields {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// formErrors returns the field errors of a validation or conflict error, or
// nil if err should be rendered as an error page instead
func formErrors(err error) map[string]string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	if errors.Is(err, domain.ErrConflict) {
		return map[string]string{"username": "A user with that username already exists."}
	}
	return nil
}

// safeNext only allows redirects back into the console
func safeNext(next string) string {
	if strings.HasPrefix(next, "/console") && !strings.HasPrefix(next, "//") && !strings.Contains(next, "\\") {
		return next
	}
	return "/console/"
}

// LoginForm handles GET /console/login
func (h *ConsoleHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login", pageData{Title: "Sign in", Next: r.URL.Query().Get("next")})
}

// Login handles POST /console/login
func (h *ConsoleHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", pageData{Title: "Sign in", Flash: "Invalid form submission."})
		return
	}
	username := r.PostForm.Get("username")
	data := pageData{Title: "Sign in", Next: r.PostForm.Get("next"), Form: map[string]string{"username": username}}

	user, session, err := h.auth.ConsoleLogin(r.Context(), username, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		data.Flash = "Please enter a correct username and password."
		h.render(w, http.StatusUnauthorized, "login", data)
		return
	case errors.Is(err, domain.ErrForbidden):
		data.Flash = "The console is only available to admin accounts."
		h.render(w, http.StatusForbidden, "login", data)
		return
	case err != nil:
		h.renderError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("console session started", slog.Int64("user_id", user.ID))
	http.Redirect(w, r, safeNext(data.Next), http.StatusSeeOther)
}

// Logout handles POST /console/logout
func (h *ConsoleHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.ConsoleLogout(r.Context(), middleware.SessionIDFromContext(r.Context())); err != nil {
		h.logger.Warn("failed to end console session", slog.String("error", err.Error()))
	}
	http.SetCookie(w, &http.Cookie{Name: h.cfg.CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/console/login", http.StatusSeeOther)
}

// Dashboard handles GET /console/
func (h *ConsoleHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	tasks, err := h.tasks.ListTasks(r.Context(), actor, service.TaskListFilter{})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	now := time.Now()
	counts := map[string]int{}
	for _, t := range tasks {
		counts[string(t.Status)]++
		if t.Overdue(now) {
			counts["overdue"]++
		}
	}
	if actor.Role == domain.RoleSuperadmin {
		users, err := h.users.ListUsers(r.Context(), actor, domain.UserFilter{})
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		counts["users"] = len(users)
	}
	h.render(w, http.StatusOK, "dashboard", pageData{Title: "Dashboard", Actor: actor, Counts: counts})
}

// Users handles GET /console/users
func (h *ConsoleHandler) Users(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	users, err := h.users.ListUsers(r.Context(), actor, domain.UserFilter{})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "users", pageData{Title: "Users", Actor: actor, Users: users, Admins: users})
}

func (h *ConsoleHandler) adminChoices(r *http.Request, actor *domain.User) ([]*domain.User, error) {
	if actor.Role != domain.RoleSuperadmin {
		return nil, nil
	}
	role := domain.RoleAdmin
	return h.users.ListUsers(r.Context(), actor, domain.UserFilter{Role: &role})
}

// NewUser handles GET /console/users/new
func (h *ConsoleHandler) NewUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor.Role != domain.RoleSuperadmin && actor.Role != domain.RoleAdmin {
		h.renderError(w, r, domain.ErrForbidden)
		return
	}
	admins, err := h.adminChoices(r, actor)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "user_form", pageData{
		Title:  "New user",
		Actor:  actor,
		Action: "/console/users",
		Form:   map[string]string{"role": string(domain.RoleUser)},
		Admins: admins,
		Roles:  allRoles,
	})
}

func parseOptionalID(field, value string, ve *domain.ValidationError) *int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		ve.Add(field, "select a valid choice")
		return nil
	}
	return &id
}

// CreateUser handles POST /console/users
func (h *ConsoleHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, domain.FieldError("non_field", "invalid form submission"))
		return
	}
	form := map[string]string{
		"username":  r.PostForm.Get("username"),
		"role":      r.PostForm.Get("role"),
		"admin_ref": r.PostForm.Get("admin_ref"),
	}

	ve := domain.NewValidationError()
	in := service.CreateUserInput{
		Username: form["username"],
		Password: r.PostForm.Get("password"),
		Role:     domain.Role(form["role"]),
		AdminID:  parseOptionalID("admin_ref", form["admin_ref"], ve),
	}

	err := ve.Err()
	if err == nil {
		_, err = h.users.CreateUser(r.Context(), actor, in)
	}
	if err != nil {
		fields := formErrors(err)
		if fields == nil {
			h.renderError(w, r, err)
			return
		}
		admins, aerr := h.adminChoices(r, actor)
		if aerr != nil {
			h.renderError(w, r, aerr)
			return
		}
		h.render(w, http.StatusBadRequest, "user_form", pageData{
			Title: "New user", Actor: actor, Action: "/console/users",
			Form: form, Errors: fields, Admins: admins, Roles: allRoles,
		})
		return
	}

	if actor.Role == domain.RoleSuperadmin {
		http.Redirect(w, r, "/console/users", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/console/", http.StatusSeeOther)
}

// EditUserForm handles GET /console/users/{id}/edit
func (h *ConsoleHandler) EditUserForm(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	user, err := h.users.GetUser(r.Context(), actor, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	admins, err := h.adminChoices(r, actor)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	form := map[string]string{"username": user.Username, "role": string(user.Role)}
	if user.AdminID != nil {
		form["admin_ref"] = strconv.FormatInt(*user.AdminID, 10)
	}
	h.render(w, http.StatusOK, "user_form", pageData{
		Title: "Edit " + user.Username, Actor: actor, Editing: true,
		Action: fmt.Sprintf("/console/users/%d", user.ID),
		Form:   form, Admins: admins, Roles: allRoles,
	})
}

// EditUser handles POST /console/users/{id}
func (h *ConsoleHandler) EditUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, domain.FieldError("non_field", "invalid form submission"))
		return
	}
	form := map[string]string{
		"username":  r.PostForm.Get("username"),
		"role":      r.PostForm.Get("role"),
		"admin_ref": r.PostForm.Get("admin_ref"),
	}

	ve := domain.NewValidationError()
	username := form["username"]
	role := domain.Role(form["role"])
	in := service.EditUserInput{
		Username: &username,
		Role:     &role,
		SetAdmin: true,
		AdminID:  parseOptionalID("admin_ref", form["admin_ref"], ve),
	}
	if pw := r.PostForm.Get("password"); pw != "" {
		in.Password = &pw
	}

	err = ve.Err()
	if err == nil {
		_, err = h.users.EditUser(r.Context(), actor, id, in)
	}
	if err != nil {
		fields := formErrors(err)
		if fields == nil {
			h.renderError(w, r, err)
			return
		}
		admins, aerr := h.adminChoices(r, actor)
		if aerr != nil {
			h.renderError(w, r, aerr)
			return
		}
		h.render(w, http.StatusBadRequest, "user_form", pageData{
			Title: "Edit " + username, Actor: actor, Editing: true,
			Action: fmt.Sprintf("/console/users/%d", id),
			Form:   form, Errors: fields, Admins: admins, Roles: allRoles,
		})
		return
	}
	http.Redirect(w, r, "/console/users", http.StatusSeeOther)
}

// DeleteUser handles POST /console/users/{id}/delete
func (h *ConsoleHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.users.DeleteUser(r.Context(), actor, id); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/console/users", http.StatusSeeOther)
}

// Tasks handles GET /console/tasks
func (h *ConsoleHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())

	var filter service.TaskListFilter
	status := r.URL.Query().Get("status")
	if status != "" {
		st := domain.TaskStatus(status)
		filter.Status = &st
	}
	tasks, err := h.tasks.ListTasks(r.Context(), actor, filter)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	assignees, err := h.tasks.AssignableUsers(r.Context(), actor)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, http.StatusOK, "tasks", pageData{
		Title: "Tasks", Actor: actor, Tasks: tasks, Assignees: assignees,
		Statuses: allStatuses, Form: map[string]string{"status": status},
	})
}

// NewTask handles GET /console/tasks/new
func (h *ConsoleHandler) NewTask(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	assignees, err := h.tasks.AssignableUsers(r.Context(), actor)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "task_form", pageData{
		Title: "New task", Actor: actor, Action: "/console/tasks",
		Form:      map[string]string{"status": string(domain.TaskPending)},
		Assignees: assignees, Statuses: allStatuses,
	})
}

func taskForm(r *http.Request) map[string]string {
	form := map[string]string{}
	for _, k := range []string{"title", "description", "assigned_to", "due_date", "status", "completion_report", "worked_hours"} {
		form[k] = r.PostForm.Get(k)
	}
	return form
}

// CreateTask handles POST /console/tasks
func (h *ConsoleHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, domain.FieldError("non_field", "invalid form submission"))
		return
	}
	form := taskForm(r)

	ve := domain.NewValidationError()
	in := service.CreateTaskInput{
		Title:       form["title"],
		Description: form["description"],
		Status:      domain.TaskStatus(form["status"]),
	}
	if id := parseOptionalID("assigned_to", form["assigned_to"], ve); id != nil {
		in.AssignedTo = *id
	} else {
		ve.Add("assigned_to", "this field is required")
	}
	in.DueDate = parseDate("due_date", form["due_date"], ve)

	err := ve.Err()
	var task *domain.Task
	if err == nil {
		task, err = h.tasks.CreateTask(r.Context(), actor, in)
	}
	if err != nil {
		fields := formErrors(err)
		if fields == nil {
			h.renderError(w, r, err)
			return
		}
		assignees, aerr := h.tasks.AssignableUsers(r.Context(), actor)
		if aerr != nil {
			h.renderError(w, r, aerr)
			return
		}
		h.render(w, http.StatusBadRequest, "task_form", pageData{
			Title: "New task", Actor: actor, Action: "/console/tasks",
			Form: form, Errors: fields, Assignees: assignees, Statuses: allStatuses,
		})
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/console/tasks/%d", task.ID), http.StatusSeeOther)
}

// TaskDetail handles GET /console/tasks/{id}
func (h *ConsoleHandler) TaskDetail(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	task, err := h.tasks.GetTask(r.Context(), actor, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	data := pageData{Title: task.Title, Actor: actor, Task: task}
	if task.Status == domain.TaskCompleted {
		report, err := h.tasks.GetTaskReport(r.Context(), actor, id)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		data.Report = report
	}
	if data.Assignees, err = h.tasks.AssignableUsers(r.Context(), actor); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "task_detail", data)
}

// EditTaskForm handles GET /console/tasks/{id}/edit
func (h *ConsoleHandler) EditTaskForm(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	task, err := h.tasks.GetTask(r.Context(), actor, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	assignees, err := h.tasks.AssignableUsers(r.Context(), actor)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	form := map[string]string{
		"title":             task.Title,
		"description":       task.Description,
		"assigned_to":       strconv.FormatInt(task.AssignedTo, 10),
		"due_date":          task.DueDate.Format(time.DateOnly),
		"status":            string(task.Status),
		"completion_report": task.CompletionReport,
	}
	if task.WorkedHours != nil {
		form["worked_hours"] = strconv.Itoa(*task.WorkedHours)
	}
	h.render(w, http.StatusOK, "task_form", pageData{
		Title: "Edit task", Actor: actor, Editing: true,
		Action: fmt.Sprintf("/console/tasks/%d", task.ID),
		Form:   form, Assignees: assignees, Statuses: allStatuses,
	})
}

// taskPatchFromForm builds a patch from a full edit form. Status is only
// part of the patch when it changes, so re-saving a completed task checks
// the kept report and hours rather than demanding them again.
func taskPatchFromForm(form map[string]string, current *domain.Task, ve *domain.ValidationError) domain.TaskPatch {
	title, description, report := form["title"], form["description"], form["completion_report"]
	patch := domain.TaskPatch{
		Title:            &title,
		Description:      &description,
		CompletionReport: &report,
	}
	if id := parseOptionalID("assigned_to", form["assigned_to"], ve); id != nil {
		patch.AssignedTo = id
	}
	patch.DueDate = parseDate("due_date", form["due_date"], ve)
	if st := domain.TaskStatus(form["status"]); st != current.Status {
		patch.Status = &st
	}
	if h := strings.TrimSpace(form["worked_hours"]); h != "" {
		hours, err := strconv.Atoi(h)
		if err != nil {
			ve.Add("worked_hours", "enter a whole number")
		} else {
			patch.WorkedHours = &hours
		}
	}
	return patch
}

// EditTask handles POST /console/tasks/{id}
func (h *ConsoleHandler) EditTask(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, domain.FieldError("non_field", "invalid form submission"))
		return
	}
	current, err := h.tasks.GetTask(r.Context(), actor, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	form := taskForm(r)
	ve := domain.NewValidationError()
	patch := taskPatchFromForm(form, current, ve)

	err = ve.Err()
	if err == nil {
		_, err = h.tasks.UpdateTask(r.Context(), actor, id, patch)
	}
	if err != nil {
		fields := formErrors(err)
		if fields == nil {
			h.renderError(w, r, err)
			return
		}
		assignees, aerr := h.tasks.AssignableUsers(r.Context(), actor)
		if aerr != nil {
			h.renderError(w, r, aerr)
			return
		}
		h.render(w, http.StatusBadRequest, "task_form", pageData{
			Title: "Edit task", Actor: actor, Editing: true,
			Action: fmt.Sprintf("/console/tasks/%d", id),
			Form:   form, Errors: fields, Assignees: assignees, Statuses: allStatuses,
		})
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/console/tasks/%d", id), http.StatusSeeOther)
}

// DeleteTask handles POST /console/tasks/{id}/delete
func (h *ConsoleHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.tasks.DeleteTask(r.Context(), actor, id); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/console/tasks", http.StatusSeeOther)
}
