package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
)

func TestMapPQErrorUniqueIsConflict(t *testing.T) {
	err := mapPQError("create", &pq.Error{Code: pqUniqueViolation, Constraint: "users_username_key"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMapPQErrorForeignKeyNamesField(t *testing.T) {
	err := mapPQError("create", &pq.Error{Code: pqForeignKeyViolation, Constraint: "tasks_assigned_to_fkey"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["assigned_to"]; !ok {
		t.Fatalf("expected assigned_to field, got %v", ve.Fields)
	}
}

func TestMapPQErrorUnknownConstraint(t *testing.T) {
	err := mapPQError("update", &pq.Error{Code: pqCheckViolation, Constraint: "mystery"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["non_field"] == "" {
		t.Fatalf("expected non_field validation error, got %v", err)
	}
}

func TestMapPQErrorPassesThroughOthers(t *testing.T) {
	base := fmt.Errorf("connection reset")
	err := mapPQError("list", base)
	if !errors.Is(err, base) || errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected wrapped original error, got %v", err)
	}
}

func TestMapPQErrorOutOfRangeIsValidation(t *testing.T) {
	err := mapPQError("update", &pq.Error{Code: pqNumericOutOfRange})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["non_field"] == "" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMapPQErrorDeadlockIsConflict(t *testing.T) {
	err := mapPQError("update", &pq.Error{Code: pqDeadlockDetected})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
