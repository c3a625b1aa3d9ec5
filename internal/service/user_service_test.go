package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
)

func TestSuperadminCreatesAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "carol", Password: "password1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	user, err := f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "dan", Password: "password1", Role: domain.RoleUser, AdminID: &admin.ID})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !user.ManagedBy(admin.ID) || user.PasswordHash == "" || user.PasswordHash == "password1" {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "dan", Password: "password1", Role: domain.RoleUser}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "bad name", Password: "short", Role: "owner"})
	fields := validationFields(t, err)
	for _, field := range []string{"username", "password", "role"} {
		if fields[field] == "" {
			t.Fatalf("expected %s error, got %v", field, fields)
		}
	}

	_, err = f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "eve", Password: "password1", Role: domain.RoleUser, AdminID: &f.u1.ID})
	if fields := validationFields(t, err); fields["admin_ref"] == "" {
		t.Fatalf("admin_ref must reference an admin, got %v", fields)
	}

	_, err = f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "eve", Password: "password1", Role: domain.RoleAdmin, AdminID: &f.adminA.ID})
	if fields := validationFields(t, err); fields["admin_ref"] == "" {
		t.Fatalf("admins cannot have an admin, got %v", fields)
	}
}

func TestAdminCreatesOnlyOwnUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.usvc.CreateUser(ctx, f.adminA, CreateUserInput{Username: "fay", Password: "password1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Role != domain.RoleUser || !u.ManagedBy(f.adminA.ID) {
		t.Fatalf("admin-created account should be their user, got %+v", u)
	}

	if _, err := f.usvc.CreateUser(ctx, f.adminA, CreateUserInput{Username: "gus", Password: "password1", Role: domain.RoleAdmin}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin creating admin: expected ErrForbidden, got %v", err)
	}
	if _, err := f.usvc.CreateUser(ctx, f.adminA, CreateUserInput{Username: "gus", Password: "password1", AdminID: &f.adminB.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin creating for another admin: expected ErrForbidden, got %v", err)
	}
	if _, err := f.usvc.CreateUser(ctx, f.u1, CreateUserInput{Username: "gus", Password: "password1", Role: domain.RoleUser}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("user creating accounts: expected ErrForbidden, got %v", err)
	}
}

func TestUserManagementIsSuperadminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.usvc.ListUsers(ctx, f.adminA, domain.UserFilter{}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("list: expected ErrForbidden, got %v", err)
	}
	if _, err := f.usvc.GetUser(ctx, f.adminA, f.u1.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("get: expected ErrForbidden, got %v", err)
	}
	if _, err := f.usvc.EditUser(ctx, f.adminA, f.u1.ID, EditUserInput{Username: ptr("x")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("edit: expected ErrForbidden, got %v", err)
	}
	if err := f.usvc.DeleteUser(ctx, f.adminA, f.u1.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("delete: expected ErrForbidden, got %v", err)
	}

	users, err := f.usvc.ListUsers(ctx, f.root, domain.UserFilter{AdminID: &f.adminA.ID})
	if err != nil || len(users) != 1 || users[0].ID != f.u1.ID {
		t.Fatalf("superadmin list by admin = %v, err %v", users, err)
	}
}

func TestEditRoleClearsAdminRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	promoted, err := f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{Role: ptr(domain.RoleAdmin)})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Role != domain.RoleAdmin || promoted.AdminID != nil {
		t.Fatalf("promoted account kept admin_ref: %+v", promoted)
	}
}

func TestEditRoleRejectedWhileUserHasTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTask(t, f.u1)

	_, err := f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{Role: ptr(domain.RoleAdmin)})
	if fields := validationFields(t, err); fields["role"] == "" {
		t.Fatalf("expected role error, got %v", fields)
	}
	u, _ := f.users.GetByID(ctx, f.u1.ID)
	if u.Role != domain.RoleUser || !u.ManagedBy(f.adminA.ID) {
		t.Fatalf("user changed despite rejection: %+v", u)
	}
}

func TestDemotingAdminReleasesUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.usvc.EditUser(ctx, f.root, f.adminA.ID, EditUserInput{Role: ptr(domain.RoleUser)}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	u, _ := f.users.GetByID(ctx, f.u1.ID)
	if u.AdminID != nil {
		t.Fatalf("managed user should be released, got admin %d", *u.AdminID)
	}
}

func TestEditAdminRefAndSelfRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	moved, err := f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{SetAdmin: true, AdminID: &f.adminB.ID})
	if err != nil || !moved.ManagedBy(f.adminB.ID) {
		t.Fatalf("reassign admin: %+v %v", moved, err)
	}
	cleared, err := f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{SetAdmin: true})
	if err != nil || cleared.AdminID != nil {
		t.Fatalf("clear admin: %+v %v", cleared, err)
	}

	_, err = f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{SetAdmin: true, AdminID: &f.u1.ID})
	if fields := validationFields(t, err); fields["admin_ref"] == "" {
		t.Fatalf("self admin_ref must fail, got %v", fields)
	}
	_, err = f.usvc.EditUser(ctx, f.root, f.root.ID, EditUserInput{Role: ptr(domain.RoleUser)})
	if fields := validationFields(t, err); fields["role"] == "" {
		t.Fatalf("changing own role must fail, got %v", fields)
	}
	if _, err := f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{Username: ptr("vic")}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on rename to taken username, got %v", err)
	}
}

func TestDeleteUserCascadesTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1 := f.seedTask(t, f.u1)
	t2 := f.seedTask(t, f.u2)

	if err := f.usvc.DeleteUser(ctx, f.root, f.u1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.tasks.GetByID(ctx, t1.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("task of deleted user survived: %v", err)
	}
	remaining, _ := f.tasks.List(ctx, domain.TaskFilter{})
	for _, task := range remaining {
		if _, err := f.users.GetByID(ctx, task.AssignedTo); err != nil {
			t.Fatalf("orphaned task %d: %v", task.ID, err)
		}
	}
	if len(remaining) != 1 || remaining[0].ID != t2.ID {
		t.Fatalf("unrelated tasks must survive, got %d", len(remaining))
	}
}

func TestDeleteAdminReleasesUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.usvc.DeleteUser(ctx, f.root, f.adminA.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	u, err := f.users.GetByID(ctx, f.u1.ID)
	if err != nil || u.AdminID != nil {
		t.Fatalf("managed user should survive unassigned: %+v %v", u, err)
	}
}

func TestCannotDeleteSelf(t *testing.T) {
	f := newFixture(t)
	err := f.usvc.DeleteUser(context.Background(), f.root, f.root.ID)
	validationFields(t, err)
	if _, err := f.users.GetByID(context.Background(), f.root.ID); err != nil {
		t.Fatalf("superadmin was deleted: %v", err)
	}
}

func TestAdminRefRecheckedInsideWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	demote := func() {
		if _, err := f.usvc.EditUser(ctx, f.root, f.adminB.ID, EditUserInput{Role: ptr(domain.RoleUser)}); err != nil {
			t.Fatalf("demote: %v", err)
		}
	}

	f.store.beforeTx = demote
	_, err := f.usvc.CreateUser(ctx, f.root, CreateUserInput{Username: "hal", Password: "password1", Role: domain.RoleUser, AdminID: &f.adminB.ID})
	if fields := validationFields(t, err); fields["admin_ref"] == "" {
		t.Fatalf("expected admin_ref error on create, got %v", fields)
	}
	if _, err := f.users.GetByUsername(ctx, "hal"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("account created under a demoted admin: %v", err)
	}

	// adminB is a user now; a fresh admin gets demoted mid-edit
	ivy := f.seedUser(t, "ivy", domain.RoleAdmin, nil)
	f.store.beforeTx = func() {
		if _, err := f.usvc.EditUser(ctx, f.root, ivy.ID, EditUserInput{Role: ptr(domain.RoleUser)}); err != nil {
			t.Fatalf("demote: %v", err)
		}
	}
	_, err = f.usvc.EditUser(ctx, f.root, f.u1.ID, EditUserInput{SetAdmin: true, AdminID: &ivy.ID})
	if fields := validationFields(t, err); fields["admin_ref"] == "" {
		t.Fatalf("expected admin_ref error on edit, got %v", fields)
	}
	if u, _ := f.users.GetByID(ctx, f.u1.ID); !u.ManagedBy(f.adminA.ID) {
		t.Fatalf("user moved despite rejection: %+v", u)
	}
}
