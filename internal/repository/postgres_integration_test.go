package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/pkg/database"
)

// openTestDB connects to TASKDESK_TEST_DSN (a lib/pq connection string) and
// skips the test when it is unset.
func openTestDB(t *testing.T) (*PostgresUserRepository, *PostgresTaskRepository) {
	t.Helper()
	dsn := os.Getenv("TASKDESK_TEST_DSN")
	if dsn == "" {
		t.Skip("TASKDESK_TEST_DSN not set; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := database.OpenDSN(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresUserRepository(pool.GetDB(), nil), NewPostgresTaskRepository(pool.GetDB(), nil)
}

func seedUser(t *testing.T, users *PostgresUserRepository, role domain.Role, adminID *int64) *domain.User {
	t.Helper()
	u := &domain.User{Username: string(role) + "-" + uuid.NewString()[:8], PasswordHash: "x", Role: role, AdminID: adminID}
	if err := users.Create(context.Background(), u, nil); err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	return u
}

func TestPostgresTaskLifecycle(t *testing.T) {
	users, tasks := openTestDB(t)
	ctx := context.Background()

	admin := seedUser(t, users, domain.RoleAdmin, nil)
	worker := seedUser(t, users, domain.RoleUser, &admin.ID)

	task := &domain.Task{
		Title:      "Rotate keys",
		AssignedTo: worker.ID,
		DueDate:    time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:     domain.TaskPending,
	}
	if err := tasks.Create(ctx, task, nil); err != nil {
		t.Fatalf("create task: %v", err)
	}

	got, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.AssigneeAdminID == nil || *got.AssigneeAdminID != admin.ID {
		t.Fatalf("expected assignee admin %d, got %v", admin.ID, got.AssigneeAdminID)
	}

	// a failing mutate leaves the row untouched
	gate := errors.New("gate")
	if _, err := tasks.Update(ctx, task.ID, func(row *domain.Task, _ domain.UserLookup) error {
		row.Status = domain.TaskCompleted
		return gate
	}); !errors.Is(err, gate) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	got, _ = tasks.GetByID(ctx, task.ID)
	if got.Status != domain.TaskPending {
		t.Fatalf("rolled back update leaked status %q", got.Status)
	}

	hours := 2
	updated, err := tasks.Update(ctx, task.ID, func(row *domain.Task, _ domain.UserLookup) error {
		row.Status = domain.TaskCompleted
		row.CompletionReport = "done"
		row.WorkedHours = &hours
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.TaskCompleted || updated.WorkedHours == nil || *updated.WorkedHours != 2 {
		t.Fatalf("unexpected task after update %+v", updated)
	}

	adminID := admin.ID
	list, err := tasks.List(ctx, domain.TaskFilter{AdminID: &adminID})
	if err != nil || len(list) != 1 || list[0].ID != task.ID {
		t.Fatalf("admin scoped list: %v %v", list, err)
	}

	// deleting the assignee cascades to its tasks
	if err := users.Delete(ctx, worker.ID, func(*domain.User) error { return nil }); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := tasks.GetByID(ctx, task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected task removed with assignee, got %v", err)
	}
}

func TestPostgresDuplicateUsername(t *testing.T) {
	users, _ := openTestDB(t)
	u := seedUser(t, users, domain.RoleAdmin, nil)

	dup := &domain.User{Username: u.Username, PasswordHash: "x", Role: domain.RoleAdmin}
	if err := users.Create(context.Background(), dup, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgresAdminDeleteReleasesUsers(t *testing.T) {
	users, _ := openTestDB(t)
	ctx := context.Background()

	admin := seedUser(t, users, domain.RoleAdmin, nil)
	member := seedUser(t, users, domain.RoleUser, &admin.ID)

	if err := users.Delete(ctx, admin.ID, func(*domain.User) error { return nil }); err != nil {
		t.Fatalf("delete admin: %v", err)
	}
	got, err := users.GetByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.AdminID != nil {
		t.Fatalf("expected admin_ref cleared, got %d", *got.AdminID)
	}
}

func TestPostgresAssigneeLockedUntilTaskCommits(t *testing.T) {
	users, tasks := openTestDB(t)
	ctx := context.Background()

	worker := seedUser(t, users, domain.RoleUser, nil)
	promoted := make(chan error, 1)

	task := &domain.Task{
		Title:      "Audit",
		AssignedTo: worker.ID,
		DueDate:    time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:     domain.TaskPending,
	}
	err := tasks.Create(ctx, task, func(row *domain.Task, lookup domain.UserLookup) error {
		u, err := lookup(row.AssignedTo)
		if err != nil || u == nil || u.Role != domain.RoleUser {
			return fmt.Errorf("assignee check: %v %v", u, err)
		}
		// the promotion blocks on the share lock until this insert commits,
		// then sees the new task
		go func() {
			_, err := users.Update(ctx, worker.ID, func(u *domain.User, refs domain.UserRefs, _ domain.UserLookup) error {
				if refs.AssignedTasks > 0 {
					return domain.FieldError("role", "user still has tasks")
				}
				u.Role = domain.RoleAdmin
				return nil
			})
			promoted <- err
		}()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	select {
	case err := <-promoted:
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected promotion to be rejected, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("promotion never finished")
	}
	got, err := users.GetByID(ctx, worker.ID)
	if err != nil || got.Role != domain.RoleUser {
		t.Fatalf("assignee role changed under a committed task: %+v %v", got, err)
	}
}
