package domain

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// Task is a unit of work assigned to a RoleUser account
type Task struct {
	ID               int64
	Title            string
	Description      string
	AssignedTo       int64
	DueDate          time.Time // date only, UTC midnight
	Status           TaskStatus
	CompletionReport string
	WorkedHours      *int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// AssigneeAdminID mirrors the assignee's AdminID at read time. It is
	// loaded by the repository and never written through the task.
	AssigneeAdminID *int64
}

// Overdue reports whether the task is past its due date and not completed
func (t *Task) Overdue(now time.Time) bool {
	if t.Status == TaskCompleted {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return t.DueDate.Before(today)
}

// TaskPatch carries the fields an update wants to change. Nil means untouched.
type TaskPatch struct {
	Title            *string
	Description      *string
	AssignedTo       *int64
	DueDate          *time.Time
	Status           *TaskStatus
	CompletionReport *string
	WorkedHours      *int
}

// TaskFilter narrows List results. Nil fields are ignored.
type TaskFilter struct {
	AssignedTo *int64
	AdminID    *int64 // tasks whose assignee is managed by this admin
	Status     *TaskStatus
}

// TaskRepository defines data access for tasks
type TaskRepository interface {
	// Create runs check and inserts task in one transaction. Assignees read
	// through lookup stay share-locked until the insert commits.
	Create(ctx context.Context, task *Task, check func(t *Task, lookup UserLookup) error) error
	GetByID(ctx context.Context, id int64) (*Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*Task, error)
	// Update locks the task row, hands a copy to mutate and writes it back
	// only if mutate returns nil; otherwise the row is left untouched.
	Update(ctx context.Context, id int64, mutate func(t *Task, lookup UserLookup) error) (*Task, error)
	// Delete locks the task row and removes it if check returns nil.
	Delete(ctx context.Context, id int64, check func(t *Task) error) error
	CountByStatus(ctx context.Context) (map[TaskStatus]int, error)
	CountOverdue(ctx context.Context, asOf time.Time) (int, error)
}
