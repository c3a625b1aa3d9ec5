package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/pkg/database"
)

// every read joins the assignee so authorization sees its admin_id from
// the same snapshot
const taskSelect = `
	SELECT t.id, t.title, t.description, t.assigned_to, t.due_date, t.status,
		t.completion_report, t.worked_hours, t.created_at, t.updated_at, u.admin_id
	FROM tasks t
	JOIN users u ON u.id = t.assigned_to
`

// PostgresTaskRepository implements domain.TaskRepository using PostgreSQL
type PostgresTaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTaskRepository creates a new task repository
func NewPostgresTaskRepository(db *sql.DB, logger *slog.Logger) *PostgresTaskRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskRepository{db: db, logger: logger}
}

func scanTask(row rowScanner) (*domain.Task, error) {
	task := &domain.Task{}
	var (
		status  string
		hours   sql.NullInt64
		adminID sql.NullInt64
	)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.AssignedTo,
		&task.DueDate,
		&status,
		&task.CompletionReport,
		&hours,
		&task.CreatedAt,
		&task.UpdatedAt,
		&adminID,
	)
	if err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	task.DueDate = task.DueDate.UTC()
	if hours.Valid {
		h := int(hours.Int64)
		task.WorkedHours = &h
	}
	if adminID.Valid {
		id := adminID.Int64
		task.AssigneeAdminID = &id
	}
	return task, nil
}

func nullableHours(h *int) sql.NullInt64 {
	if h == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*h), Valid: true}
}

func dateOnly(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Create runs check with a share-locking user lookup, then inserts the task
// and loads its assignee's admin, all in one transaction
func (r *PostgresTaskRepository) Create(ctx context.Context, task *domain.Task, check func(t *domain.Task, lookup domain.UserLookup) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if check != nil {
			if err := check(task, shareLookup(ctx, tx)); err != nil {
				return err
			}
		}

		var adminID sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			WITH ins AS (
				INSERT INTO tasks (title, description, assigned_to, due_date, status, completion_report, worked_hours)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, assigned_to, created_at, updated_at
			)
			SELECT ins.id, ins.created_at, ins.updated_at, u.admin_id
			FROM ins JOIN users u ON u.id = ins.assigned_to
		`,
			task.Title,
			task.Description,
			task.AssignedTo,
			dateOnly(task.DueDate),
			string(task.Status),
			task.CompletionReport,
			nullableHours(task.WorkedHours),
		).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt, &adminID)
		if err != nil {
			r.logger.Error("failed to create task",
				slog.Int64("assigned_to", task.AssignedTo),
				slog.String("error", err.Error()),
			)
			return mapPQError("failed to create task", err)
		}

		task.AssigneeAdminID = nil
		if adminID.Valid {
			id := adminID.Int64
			task.AssigneeAdminID = &id
		}
		return nil
	})
}

// GetByID retrieves a task by ID
func (r *PostgresTaskRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List returns tasks matching filter ordered by due date
func (r *PostgresTaskRepository) List(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		where = append(where, "t.assigned_to = $"+strconv.Itoa(len(args)))
	}
	if filter.AdminID != nil {
		args = append(args, *filter.AdminID)
		where = append(where, "u.admin_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, "t.status = $"+strconv.Itoa(len(args)))
	}

	query := taskSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.due_date, t.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *PostgresTaskRepository) lock(ctx context.Context, tx *sql.Tx, id int64) (*domain.Task, error) {
	task, err := scanTask(tx.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1 FOR UPDATE OF t FOR SHARE OF u`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock task: %w", err)
	}
	return task, nil
}

// Update locks the task and its assignee, applies mutate and writes every
// column back in one statement
func (r *PostgresTaskRepository) Update(ctx context.Context, id int64, mutate func(t *domain.Task, lookup domain.UserLookup) error) (*domain.Task, error) {
	var updated *domain.Task

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		task, err := r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		previousAssignee := task.AssignedTo

		if err := mutate(task, shareLookup(ctx, tx)); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE tasks
			SET title = $2, description = $3, assigned_to = $4, due_date = $5, status = $6,
				completion_report = $7, worked_hours = $8, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, id,
			task.Title,
			task.Description,
			task.AssignedTo,
			dateOnly(task.DueDate),
			string(task.Status),
			task.CompletionReport,
			nullableHours(task.WorkedHours),
		).Scan(&task.UpdatedAt)
		if err != nil {
			return mapPQError("failed to update task", err)
		}

		if task.AssignedTo != previousAssignee {
			var adminID sql.NullInt64
			if err := tx.QueryRowContext(ctx,
				`SELECT admin_id FROM users WHERE id = $1`, task.AssignedTo).Scan(&adminID); err != nil {
				return fmt.Errorf("failed to reload assignee: %w", err)
			}
			task.AssigneeAdminID = nil
			if adminID.Valid {
				v := adminID.Int64
				task.AssigneeAdminID = &v
			}
		}

		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete locks the task and removes it once check approves
func (r *PostgresTaskRepository) Delete(ctx context.Context, id int64, check func(t *domain.Task) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		task, err := r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := check(task); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		return nil
	})
}

// CountByStatus returns the number of tasks per status
func (r *PostgresTaskRepository) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := map[domain.TaskStatus]int{
		domain.TaskPending:    0,
		domain.TaskInProgress: 0,
		domain.TaskCompleted:  0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[domain.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountOverdue returns non-completed tasks due before asOf's date
func (r *PostgresTaskRepository) CountOverdue(ctx context.Context, asOf time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status <> 'completed' AND due_date < $1`,
		dateOnly(asOf),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count overdue tasks: %w", err)
	}
	return n, nil
}
