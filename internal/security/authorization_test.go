package security

import (
	"errors"
	"testing"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
)

func ptr[T any](v T) *T { return &v }

var (
	root   = &domain.User{ID: 1, Username: "root", Role: domain.RoleSuperadmin}
	adminA = &domain.User{ID: 2, Username: "ada", Role: domain.RoleAdmin}
	adminB = &domain.User{ID: 3, Username: "bob", Role: domain.RoleAdmin}
	userU  = &domain.User{ID: 4, Username: "uma", Role: domain.RoleUser, AdminID: ptr(int64(2))}
	userV  = &domain.User{ID: 5, Username: "vic", Role: domain.RoleUser, AdminID: ptr(int64(3))}
)

func taskFor(assignee *domain.User) *domain.Task {
	return &domain.Task{ID: 10, Title: "t", AssignedTo: assignee.ID, AssigneeAdminID: assignee.AdminID, Status: domain.TaskPending}
}

func TestSuperadminCanDoEverything(t *testing.T) {
	as := NewAuthorizationService(nil)
	task := taskFor(userV)
	for _, a := range allTaskActions {
		if !as.Can(root, a, TaskResource(task)) {
			t.Fatalf("superadmin denied %s on task", a)
		}
	}
	for _, a := range []Action{ActionList, ActionView, ActionCreate, ActionEdit, ActionDelete} {
		if !as.Can(root, a, UserResource(adminA)) {
			t.Fatalf("superadmin denied %s on user", a)
		}
	}
}

func TestAdminScopedToManagedUsersTasks(t *testing.T) {
	as := NewAuthorizationService(nil)
	own := taskFor(userU)
	other := taskFor(userV)

	for _, a := range allTaskActions {
		if !as.Can(adminA, a, TaskResource(own)) {
			t.Fatalf("admin denied %s on own task", a)
		}
		if as.Can(adminA, a, TaskResource(other)) {
			t.Fatalf("admin allowed %s on another admin's task", a)
		}
	}
}

func TestAdminTaskOfUnmanagedUserDenied(t *testing.T) {
	as := NewAuthorizationService(nil)
	orphan := &domain.User{ID: 9, Role: domain.RoleUser}
	if as.Can(adminA, ActionView, TaskResource(taskFor(orphan))) {
		t.Fatalf("admin must not see tasks of users without an admin")
	}
}

func TestAdminUserManagement(t *testing.T) {
	as := NewAuthorizationService(nil)
	if !as.Can(adminA, ActionCreate, UserResource(&domain.User{Role: domain.RoleUser, AdminID: ptr(int64(2))})) {
		t.Fatalf("admin should create users under themselves")
	}
	if as.Can(adminA, ActionCreate, UserResource(&domain.User{Role: domain.RoleUser, AdminID: ptr(int64(3))})) {
		t.Fatalf("admin must not create users under another admin")
	}
	if as.Can(adminA, ActionCreate, UserResource(&domain.User{Role: domain.RoleAdmin})) {
		t.Fatalf("admin must not create admins")
	}
	for _, a := range []Action{ActionList, ActionView, ActionEdit, ActionDelete} {
		if as.Can(adminA, a, UserResource(userU)) {
			t.Fatalf("admin allowed %s on user", a)
		}
	}
}

func TestUserOnlyOwnTasksAndProgress(t *testing.T) {
	as := NewAuthorizationService(nil)
	own := taskFor(userU)
	other := taskFor(userV)

	if !as.Can(userU, ActionView, TaskResource(own)) || !as.Can(userU, ActionUpdateProgress, TaskResource(own)) {
		t.Fatalf("user should view and progress own task")
	}
	for _, a := range []Action{ActionCreate, ActionEdit, ActionDelete, ActionViewReport} {
		if as.Can(userU, a, TaskResource(own)) {
			t.Fatalf("user allowed %s on own task", a)
		}
	}
	if as.Can(userU, ActionView, TaskResource(other)) {
		t.Fatalf("user must not view others' tasks")
	}
	if as.Can(userU, ActionList, UserCollection()) || as.Can(userU, ActionCreate, UserCollection()) {
		t.Fatalf("user must not manage users")
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	as := NewAuthorizationService(nil)
	err := as.Authorize(userU, ActionDelete, TaskResource(taskFor(userU)))
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := as.Authorize(nil, ActionList, TaskCollection()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("nil actor should be forbidden, got %v", err)
	}
	if err := as.Authorize(adminA, ActionEdit, TaskResource(taskFor(userU))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEditableFields(t *testing.T) {
	as := NewAuthorizationService(nil)
	own := taskFor(userU)

	fs := as.EditableFields(userU, own)
	if !fs.Has(FieldStatus) || !fs.Has(FieldCompletionReport) || !fs.Has(FieldWorkedHours) {
		t.Fatalf("user should edit progress fields")
	}
	if fs.Has(FieldTitle) || fs.Has(FieldAssignedTo) || fs.Has(FieldDueDate) || fs.Has(FieldDescription) {
		t.Fatalf("user must not edit task definition fields")
	}
	if len(as.EditableFields(adminA, own)) != len(allTaskFields) {
		t.Fatalf("admin should edit every field of a managed task")
	}
	if len(as.EditableFields(adminB, own)) != 0 {
		t.Fatalf("unrelated admin should edit nothing")
	}
	if len(as.EditableFields(userV, own)) != 0 {
		t.Fatalf("other user should edit nothing")
	}
}
