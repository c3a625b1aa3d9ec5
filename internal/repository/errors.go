package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
)

// PostgreSQL error classes we translate into domain errors
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqNumericOutOfRange   = "22003"
	pqDeadlockDetected    = "40P01"
)

// constraintFields names the API field each schema constraint guards
var constraintFields = map[string]string{
	"users_username_key":         "username",
	"users_admin_id_fkey":        "admin_ref",
	"users_admin_only_for_users": "admin_ref",
	"users_admin_not_self":       "admin_ref",
	"users_role_check":           "role",
	"tasks_assigned_to_fkey":     "assigned_to",
	"tasks_status_check":         "status",
	"tasks_worked_hours_check":   "worked_hours",
	"tasks_completion_gate":      "status",
}

// mapPQError converts constraint violations raised by the database into
// domain errors. Anything else is returned wrapped with op.
func mapPQError(op string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	field, ok := constraintFields[pqErr.Constraint]
	if !ok {
		field = "non_field"
	}

	switch pqErr.Code {
	case pqUniqueViolation:
		return fmt.Errorf("%s: %s already exists: %w", op, field, domain.ErrConflict)
	case pqForeignKeyViolation:
		return domain.FieldError(field, "references a record that does not exist")
	case pqCheckViolation:
		return domain.FieldError(field, "violates constraint "+pqErr.Constraint)
	case pqNumericOutOfRange:
		return domain.FieldError(field, "value is out of range")
	case pqDeadlockDetected:
		return fmt.Errorf("%s: concurrent change, retry: %w", op, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}
