package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/pkg/database"
)

const userColumns = `id, username, password_hash, role, admin_id, created_at, updated_at`

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var adminID sql.NullInt64
	var role string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&role,
		&adminID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	if adminID.Valid {
		id := adminID.Int64
		user.AdminID = &id
	}
	return user, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// shareLookup reads users inside tx with FOR SHARE, which blocks role and
// admin changes (taken under FOR UPDATE) until tx ends
func shareLookup(ctx context.Context, tx *sql.Tx) domain.UserLookup {
	return func(id int64) (*domain.User, error) {
		user, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR SHARE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read user %d: %w", id, err)
		}
		return user, nil
	}
}

// Create inserts a new user and fills in its id and timestamps
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User, check func(u *domain.User, lookup domain.UserLookup) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if check != nil {
			if err := check(user, shareLookup(ctx, tx)); err != nil {
				return err
			}
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (username, password_hash, role, admin_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at
		`,
			user.Username,
			user.PasswordHash,
			string(user.Role),
			nullableID(user.AdminID),
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

		if err != nil {
			r.logger.Error("failed to create user",
				slog.String("username", user.Username),
				slog.String("error", err.Error()),
			)
			return mapPQError("failed to create user", err)
		}
		return nil
	})
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
		}
		r.logger.Error("failed to get user by id",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByUsername retrieves a user by username
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return user, nil
}

// List returns users matching filter ordered by username
func (r *PostgresUserRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	var (
		where []string
		args  []any
	)
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		where = append(where, "role = $"+strconv.Itoa(len(args)))
	}
	if filter.AdminID != nil {
		args = append(args, *filter.AdminID)
		where = append(where, "admin_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY username`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Update locks the user row, lets mutate change a copy and persists it.
// Counts in refs are read after the lock, so writers that share-locked the
// row through a lookup have committed by then.
func (r *PostgresUserRepository) Update(ctx context.Context, id int64, mutate func(u *domain.User, refs domain.UserRefs, lookup domain.UserLookup) error) (*domain.User, error) {
	var updated *domain.User

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		user, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		var refs domain.UserRefs
		err = tx.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM tasks WHERE assigned_to = $1),
				(SELECT COUNT(*) FROM users WHERE admin_id = $1)
		`, id).Scan(&refs.AssignedTasks, &refs.ManagedUsers)
		if err != nil {
			return fmt.Errorf("failed to count user references: %w", err)
		}

		if err := mutate(user, refs, shareLookup(ctx, tx)); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE users
			SET username = $2, password_hash = $3, role = $4, admin_id = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, id, user.Username, user.PasswordHash, string(user.Role), nullableID(user.AdminID)).Scan(&user.UpdatedAt)
		if err != nil {
			return mapPQError("failed to update user", err)
		}

		if user.Role != domain.RoleAdmin && refs.ManagedUsers > 0 {
			res, err := tx.ExecContext(ctx,
				`UPDATE users SET admin_id = NULL, updated_at = NOW() WHERE admin_id = $1`, id)
			if err != nil {
				return fmt.Errorf("failed to release managed users: %w", err)
			}
			released, _ := res.RowsAffected()
			r.logger.Info("released users of demoted admin",
				slog.Int64("admin_id", id),
				slog.Int64("released", released),
			)
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the user once check approves it. Tasks assigned to the user
// cascade and managed users are released by the foreign keys.
func (r *PostgresUserRepository) Delete(ctx context.Context, id int64, check func(u *domain.User) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		user, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if err := check(user); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return mapPQError("failed to delete user", err)
		}

		r.logger.Info("user deleted",
			slog.Int64("id", id),
			slog.String("role", string(user.Role)),
		)
		return nil
	})
}
