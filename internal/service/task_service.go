package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/events"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/taskdesk/internal/security"
	"github.com/aryan0dhankhar/taskdesk/pkg/cache"
)

const (
	maxTitleLength = 255
	// worked_hours is an INTEGER column
	maxWorkedHours = math.MaxInt32
)

// validateTitle counts characters, matching VARCHAR(255) and the JSON schema
func validateTitle(title, blankMsg string, ve *domain.ValidationError) bool {
	switch {
	case title == "":
		ve.Add("title", blankMsg)
	case utf8.RuneCountInString(title) > maxTitleLength:
		ve.Add("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	default:
		return true
	}
	return false
}

// AssigneeCache holds the assignee choices per actor
type AssigneeCache = cache.Cache[[]*domain.User]

// NewAssigneeCache returns the cache shared by the task and user services
func NewAssigneeCache() *AssigneeCache {
	return cache.New[[]*domain.User](30 * time.Second)
}

const assigneeKeyPrefix = "assignees:"

// CreateTaskInput is what a caller may set on a new task. Completion
// fields are deliberately absent.
type CreateTaskInput struct {
	Title       string
	Description string
	AssignedTo  int64
	DueDate     *time.Time
	Status      domain.TaskStatus
}

// TaskListFilter narrows ListTasks within the actor's scope
type TaskListFilter struct {
	Status *domain.TaskStatus
}

// TaskReport is the completion detail of a finished task
type TaskReport struct {
	TaskID           int64
	CompletionReport string
	WorkedHours      int
}

// TaskService owns the task lifecycle: creation, the completion gate on
// update, deletion and scoped reads
type TaskService struct {
	tasks     domain.TaskRepository
	users     domain.UserRepository
	authz     *security.AuthorizationService
	events    events.Publisher
	assignees *AssigneeCache
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewTaskService creates a new task service
func NewTaskService(
	tasks domain.TaskRepository,
	users domain.UserRepository,
	authz *security.AuthorizationService,
	publisher events.Publisher,
	assignees *AssigneeCache,
	logger *slog.Logger,
) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if assignees == nil {
		assignees = NewAssigneeCache()
	}
	return &TaskService{
		tasks:     tasks,
		users:     users,
		authz:     authz,
		events:    publisher,
		assignees: assignees,
		tracer:    tracing.Tracer("service"),
		logger:    logger,
	}
}

func (s *TaskService) startSpan(ctx context.Context, name string, actor *domain.User) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if actor != nil {
		span.SetAttributes(
			attribute.Int64("actor.id", actor.ID),
			attribute.String("actor.role", string(actor.Role)),
		)
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// authorizeTask checks action on t. A role=user actor never learns that a
// task outside their own exists; admins get Forbidden.
func (s *TaskService) authorizeTask(actor *domain.User, action security.Action, t *domain.Task) error {
	if s.authz.Can(actor, action, security.TaskResource(t)) {
		return nil
	}
	if actor != nil && actor.Role == domain.RoleUser && !s.authz.Can(actor, security.ActionView, security.TaskResource(t)) {
		return fmt.Errorf("task %d: %w", t.ID, domain.ErrNotFound)
	}
	return s.authz.Authorize(actor, action, security.TaskResource(t))
}

// checkAssignee validates that u may receive tasks from actor
func checkAssignee(actor, u *domain.User, ve *domain.ValidationError) {
	switch {
	case u == nil:
		ve.Add("assigned_to", "user does not exist")
	case u.Role != domain.RoleUser:
		ve.Add("assigned_to", "tasks can only be assigned to user accounts")
	case actor.Role == domain.RoleAdmin && !u.ManagedBy(actor.ID):
		ve.Add("assigned_to", "user is not assigned to you")
	}
}

// normalizeDate truncates to the calendar date in UTC
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateTask creates a pending (or in-progress) task for a user the actor may assign
func (s *TaskService) CreateTask(ctx context.Context, actor *domain.User, in CreateTaskInput) (_ *domain.Task, err error) {
	ctx, span := s.startSpan(ctx, "TaskService.CreateTask", actor)
	defer func() { endSpan(span, err) }()

	if err := s.authz.Authorize(actor, security.ActionCreate, security.TaskCollection()); err != nil {
		return nil, err
	}

	ve := domain.NewValidationError()
	title := strings.TrimSpace(in.Title)
	validateTitle(title, "this field is required", ve)
	if in.DueDate == nil {
		ve.Add("due_date", "this field is required")
	}

	status := in.Status
	if status == "" {
		status = domain.TaskPending
	}
	switch {
	case !status.Valid():
		ve.Add("status", fmt.Sprintf("%q is not a valid status", status))
	case status == domain.TaskCompleted:
		ve.Add("status", "a task cannot be created as completed")
	}

	task := &domain.Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		AssignedTo:  in.AssignedTo,
		Status:      status,
	}
	if in.DueDate != nil {
		task.DueDate = normalizeDate(*in.DueDate)
	}

	// the assignee is read and share-locked in the insert transaction, so a
	// concurrent role or admin change waits for this task to commit
	err = s.tasks.Create(ctx, task, func(t *domain.Task, lookup domain.UserLookup) error {
		if t.AssignedTo <= 0 {
			ve.Add("assigned_to", "this field is required")
		} else {
			assignee, err := lookup(t.AssignedTo)
			if err != nil {
				return fmt.Errorf("load assignee: %w", err)
			}
			checkAssignee(actor, assignee, ve)
			if assignee != nil {
				t.AssigneeAdminID = assignee.AdminID
			}
		}
		if err := ve.Err(); err != nil {
			return err
		}
		return s.authorizeTask(actor, security.ActionCreate, t)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("task.id", task.ID))
	s.logger.Info("task created",
		slog.Int64("task_id", task.ID),
		slog.Int64("assigned_to", task.AssignedTo),
		slog.Int64("actor_id", actor.ID),
	)
	s.events.Publish(ctx, events.NewTaskEvent(events.TaskCreated, task, actor.ID))
	return task, nil
}

// GetTask returns a task the actor may view
func (s *TaskService) GetTask(ctx context.Context, actor *domain.User, id int64) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTask(actor, security.ActionView, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns the tasks in the actor's scope
func (s *TaskService) ListTasks(ctx context.Context, actor *domain.User, filter TaskListFilter) (_ []*domain.Task, err error) {
	ctx, span := s.startSpan(ctx, "TaskService.ListTasks", actor)
	defer func() { endSpan(span, err) }()

	if err := s.authz.Authorize(actor, security.ActionList, security.TaskCollection()); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.FieldError("status", fmt.Sprintf("%q is not a valid status", *filter.Status))
	}

	query := domain.TaskFilter{Status: filter.Status}
	switch actor.Role {
	case domain.RoleAdmin:
		query.AdminID = &actor.ID
	case domain.RoleUser:
		query.AssignedTo = &actor.ID
	}

	tasks, err := s.tasks.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	visible := tasks[:0]
	for _, t := range tasks {
		if s.authz.Can(actor, security.ActionView, security.TaskResource(t)) {
			visible = append(visible, t)
		}
	}
	span.SetAttributes(attribute.Int("task.count", len(visible)))
	return visible, nil
}

// UpdateTask applies patch within the actor's editable fields and enforces
// the completion gate. The whole check-and-write happens under the row lock.
func (s *TaskService) UpdateTask(ctx context.Context, actor *domain.User, id int64, patch domain.TaskPatch) (_ *domain.Task, err error) {
	ctx, span := s.startSpan(ctx, "TaskService.UpdateTask", actor)
	span.SetAttributes(attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	var from domain.TaskStatus
	updated, err := s.tasks.Update(ctx, id, func(t *domain.Task, lookup domain.UserLookup) error {
		if err := s.authorizeTask(actor, security.ActionView, t); err != nil {
			return err
		}
		fields := s.authz.EditableFields(actor, t)
		if len(fields) == 0 {
			return s.authz.Authorize(actor, security.ActionEdit, security.TaskResource(t))
		}

		from = t.Status
		return applyPatch(actor, t, patch, fields, lookup)
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(from), string(updated.Status))
	if from != updated.Status {
		s.logger.Info("task status changed",
			slog.Int64("task_id", updated.ID),
			slog.String("from", string(from)),
			slog.String("to", string(updated.Status)),
			slog.Int64("actor_id", actor.ID),
		)
	}
	s.events.Publish(ctx, events.NewTaskEvent(events.TaskUpdated, updated, actor.ID))
	return updated, nil
}

// applyPatch mutates t in place. Fields outside the editable set are ignored.
// A new assignee is read through lookup inside the task's transaction.
func applyPatch(actor *domain.User, t *domain.Task, patch domain.TaskPatch, fields security.FieldSet, lookup domain.UserLookup) error {
	ve := domain.NewValidationError()

	if fields.Has(security.FieldTitle) && patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if validateTitle(title, "this field may not be blank", ve) {
			t.Title = title
		}
	}
	if fields.Has(security.FieldDescription) && patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if fields.Has(security.FieldAssignedTo) && patch.AssignedTo != nil && *patch.AssignedTo != t.AssignedTo {
		assignee, err := lookup(*patch.AssignedTo)
		if err != nil {
			return fmt.Errorf("load assignee: %w", err)
		}
		checkAssignee(actor, assignee, ve)
		if assignee != nil {
			t.AssignedTo = assignee.ID
			t.AssigneeAdminID = assignee.AdminID
		}
	}
	if fields.Has(security.FieldDueDate) && patch.DueDate != nil {
		t.DueDate = normalizeDate(*patch.DueDate)
	}

	completing := false
	if fields.Has(security.FieldStatus) && patch.Status != nil {
		if !patch.Status.Valid() {
			ve.Add("status", fmt.Sprintf("%q is not a valid status", *patch.Status))
		} else {
			t.Status = *patch.Status
			completing = *patch.Status == domain.TaskCompleted
		}
	}
	if fields.Has(security.FieldCompletionReport) && patch.CompletionReport != nil {
		t.CompletionReport = strings.TrimSpace(*patch.CompletionReport)
	}
	if fields.Has(security.FieldWorkedHours) && patch.WorkedHours != nil {
		switch {
		case *patch.WorkedHours <= 0:
			ve.Add("worked_hours", "must be a positive number of hours")
		case *patch.WorkedHours > maxWorkedHours:
			ve.Add("worked_hours", fmt.Sprintf("must be at most %d", maxWorkedHours))
		default:
			h := *patch.WorkedHours
			t.WorkedHours = &h
		}
	}

	switch {
	case completing:
		if patch.CompletionReport == nil || strings.TrimSpace(*patch.CompletionReport) == "" {
			ve.Add("completion_report", "required when marking a task completed")
		}
		if patch.WorkedHours == nil {
			ve.Add("worked_hours", "required when marking a task completed")
		}
	case t.Status == domain.TaskCompleted:
		if t.CompletionReport == "" {
			ve.Add("completion_report", "a completed task must keep its report")
		}
		if t.WorkedHours == nil || *t.WorkedHours <= 0 {
			ve.Add("worked_hours", "a completed task must keep its worked hours")
		}
	}

	if err := ve.Err(); err != nil {
		if t.Status == domain.TaskCompleted {
			for field := range ve.Fields {
				metrics.ObserveCompletionRejection(field)
			}
		}
		return err
	}

	if t.Status != domain.TaskCompleted {
		t.CompletionReport = ""
		t.WorkedHours = nil
	}
	return nil
}

// DeleteTask removes a task the actor may delete
func (s *TaskService) DeleteTask(ctx context.Context, actor *domain.User, id int64) (err error) {
	ctx, span := s.startSpan(ctx, "TaskService.DeleteTask", actor)
	span.SetAttributes(attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	var deleted *domain.Task
	err = s.tasks.Delete(ctx, id, func(t *domain.Task) error {
		if err := s.authorizeTask(actor, security.ActionDelete, t); err != nil {
			return err
		}
		deleted = t
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("task deleted", slog.Int64("task_id", id), slog.Int64("actor_id", actor.ID))
	s.events.Publish(ctx, events.NewTaskEvent(events.TaskDeleted, deleted, actor.ID))
	return nil
}

// GetTaskReport returns the completion report of a completed task.
// Completion is checked before permissions.
func (s *TaskService) GetTaskReport(ctx context.Context, actor *domain.User, id int64) (*TaskReport, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskCompleted {
		return nil, fmt.Errorf("task %d: %w", id, domain.ErrNotCompleted)
	}
	if err := s.authorizeTask(actor, security.ActionViewReport, task); err != nil {
		return nil, err
	}

	report := &TaskReport{TaskID: task.ID, CompletionReport: task.CompletionReport}
	if task.WorkedHours != nil {
		report.WorkedHours = *task.WorkedHours
	}
	return report, nil
}

// AssignableUsers lists the accounts the actor may assign tasks to
func (s *TaskService) AssignableUsers(ctx context.Context, actor *domain.User) ([]*domain.User, error) {
	if err := s.authz.Authorize(actor, security.ActionCreate, security.TaskCollection()); err != nil {
		return nil, err
	}

	role := domain.RoleUser
	filter := domain.UserFilter{Role: &role}
	key := assigneeKeyPrefix + "all"
	if actor.Role == domain.RoleAdmin {
		filter.AdminID = &actor.ID
		key = assigneeKeyPrefix + strconv.FormatInt(actor.ID, 10)
	}

	return s.assignees.GetOrLoad(ctx, key, func(ctx context.Context) ([]*domain.User, error) {
		users, err := s.users.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list assignees: %w", err)
		}
		return users, nil
	})
}
