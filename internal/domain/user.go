package domain

import (
	"context"
	"time"
)

// Role is a user's tier in the system
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// User represents an account. AdminID is only ever set for RoleUser and
// always points at a RoleAdmin account (one level deep, never self).
type User struct {
	ID           int64
	Username     string
	PasswordHash string // bcrypt, never returned by the API
	Role         Role
	AdminID      *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ManagedBy reports whether the user is assigned to the given admin
func (u *User) ManagedBy(adminID int64) bool {
	return u.AdminID != nil && *u.AdminID == adminID
}

// UserFilter narrows List results. Nil fields are ignored.
type UserFilter struct {
	Role    *Role
	AdminID *int64
}

// UserRefs counts rows that reference a user, read under the same lock as
// the user row during Update.
type UserRefs struct {
	AssignedTasks int
	ManagedUsers  int
}

// UserLookup reads a user inside the caller's transaction and holds a share
// lock on the row until commit, so its role and admin cannot change under
// the write. A missing user yields nil, nil.
type UserLookup func(id int64) (*User, error)

// UserRepository defines data access for users
type UserRepository interface {
	// Create inserts user after check approves it. check runs inside the
	// insert transaction and may be nil.
	Create(ctx context.Context, user *User, check func(u *User, lookup UserLookup) error) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	// Update locks the row, hands a copy to mutate and persists it only if
	// mutate returns nil. Users managed by an account that is no longer an
	// admin are released in the same transaction.
	Update(ctx context.Context, id int64, mutate func(u *User, refs UserRefs, lookup UserLookup) error) (*User, error)
	// Delete locks the row, runs check and removes the user together with the
	// tasks assigned to it. Managed users get their AdminID cleared.
	Delete(ctx context.Context, id int64, check func(u *User) error) error
}
