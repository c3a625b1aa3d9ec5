package security

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/metrics"
)

// ResourceType identifies the kind of resource being accessed
type ResourceType string

const (
	ResourceTask ResourceType = "task"
	ResourceUser ResourceType = "user"
)

// Action identifies what operation is being performed
type Action string

const (
	ActionList           Action = "list"
	ActionView           Action = "view"
	ActionCreate         Action = "create"
	ActionEdit           Action = "edit"
	ActionUpdateProgress Action = "update_progress" // status, report and hours only
	ActionDelete         Action = "delete"
	ActionViewReport     Action = "view_report"
)

// Resource is the target of an authorization check. A nil Task/User means
// the check is against the collection (listing, opening a create form).
type Resource struct {
	Type ResourceType
	Task *domain.Task
	User *domain.User
}

// TaskResource targets a single task
func TaskResource(t *domain.Task) Resource { return Resource{Type: ResourceTask, Task: t} }

// TaskCollection targets tasks as a whole
func TaskCollection() Resource { return Resource{Type: ResourceTask} }

// UserResource targets a single account
func UserResource(u *domain.User) Resource { return Resource{Type: ResourceUser, User: u} }

// UserCollection targets accounts as a whole
func UserCollection() Resource { return Resource{Type: ResourceUser} }

var allTaskActions = []Action{
	ActionList, ActionView, ActionCreate, ActionEdit, ActionUpdateProgress, ActionDelete, ActionViewReport,
}

// RolePermissions maps roles to the actions they may perform per resource
// type. Scoping to the actor's own tasks/users is applied on top of this.
var RolePermissions = map[domain.Role]map[ResourceType][]Action{
	domain.RoleSuperadmin: {
		ResourceTask: allTaskActions,
		ResourceUser: {ActionList, ActionView, ActionCreate, ActionEdit, ActionDelete},
	},
	domain.RoleAdmin: {
		ResourceTask: allTaskActions,
		ResourceUser: {ActionCreate},
	},
	domain.RoleUser: {
		ResourceTask: {ActionList, ActionView, ActionUpdateProgress},
	},
}

// TaskField names a writable task attribute
type TaskField string

const (
	FieldTitle            TaskField = "title"
	FieldDescription      TaskField = "description"
	FieldAssignedTo       TaskField = "assigned_to"
	FieldDueDate          TaskField = "due_date"
	FieldStatus           TaskField = "status"
	FieldCompletionReport TaskField = "completion_report"
	FieldWorkedHours      TaskField = "worked_hours"
)

// FieldSet is the set of task fields an actor may change
type FieldSet map[TaskField]struct{}

// Has reports whether f is in the set
func (fs FieldSet) Has(f TaskField) bool {
	_, ok := fs[f]
	return ok
}

func newFieldSet(fields ...TaskField) FieldSet {
	fs := make(FieldSet, len(fields))
	for _, f := range fields {
		fs[f] = struct{}{}
	}
	return fs
}

var (
	allTaskFields = newFieldSet(FieldTitle, FieldDescription, FieldAssignedTo, FieldDueDate,
		FieldStatus, FieldCompletionReport, FieldWorkedHours)
	progressFields = newFieldSet(FieldStatus, FieldCompletionReport, FieldWorkedHours)
)

// AuthorizationService is the single place role and ownership rules live.
// Can is pure; Authorize adds logging and metrics on denial.
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks the role table only, without ownership scoping
func (as *AuthorizationService) HasPermission(role domain.Role, rt ResourceType, action Action) bool {
	byType, exists := RolePermissions[role]
	if !exists {
		return false
	}
	return slices.Contains(byType[rt], action)
}

// Can decides whether actor may perform action on res
func (as *AuthorizationService) Can(actor *domain.User, action Action, res Resource) bool {
	if actor == nil {
		return false
	}
	if !as.HasPermission(actor.Role, res.Type, action) {
		return false
	}

	switch actor.Role {
	case domain.RoleSuperadmin:
		return true
	case domain.RoleAdmin:
		return as.adminScope(actor, res)
	case domain.RoleUser:
		return as.userScope(actor, res)
	}
	return false
}

// admins manage only tasks of users assigned to them, and may only create
// role=user accounts under themselves
func (as *AuthorizationService) adminScope(actor *domain.User, res Resource) bool {
	switch res.Type {
	case ResourceTask:
		if res.Task == nil {
			return true
		}
		return res.Task.AssigneeAdminID != nil && *res.Task.AssigneeAdminID == actor.ID
	case ResourceUser:
		if res.User == nil {
			return true
		}
		return res.User.Role == domain.RoleUser && res.User.ManagedBy(actor.ID)
	}
	return false
}

func (as *AuthorizationService) userScope(actor *domain.User, res Resource) bool {
	if res.Type != ResourceTask {
		return false
	}
	if res.Task == nil {
		return true
	}
	return res.Task.AssignedTo == actor.ID
}

// Authorize is Can returning domain.ErrForbidden on denial. The error
// carries no resource detail.
func (as *AuthorizationService) Authorize(actor *domain.User, action Action, res Resource) error {
	if as.Can(actor, action, res) {
		return nil
	}

	attrs := []any{
		slog.String("action", string(action)),
		slog.String("resource_type", string(res.Type)),
	}
	role := "anonymous"
	if actor != nil {
		role = string(actor.Role)
		attrs = append(attrs, slog.Int64("actor_id", actor.ID))
	}
	attrs = append(attrs, slog.String("role", role))
	if res.Task != nil {
		attrs = append(attrs, slog.Int64("task_id", res.Task.ID))
	}
	if res.User != nil {
		attrs = append(attrs, slog.Int64("user_id", res.User.ID))
	}
	as.logger.Warn("permission denied", attrs...)
	metrics.ObserveAuthzDenial(role, string(res.Type), string(action))

	return fmt.Errorf("%s %s: %w", action, res.Type, domain.ErrForbidden)
}

// EditableFields returns the task fields actor may change on t
func (as *AuthorizationService) EditableFields(actor *domain.User, t *domain.Task) FieldSet {
	if as.Can(actor, ActionEdit, TaskResource(t)) {
		return allTaskFields
	}
	if as.Can(actor, ActionUpdateProgress, TaskResource(t)) {
		return progressFields
	}
	return FieldSet{}
}
