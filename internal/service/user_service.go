package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/security"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
)

const maxUsernameLength = 150

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+_-]+$`)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// CreateUserInput describes a new account. Admin actors may leave Role and
// AdminID empty; they default to a user managed by the admin.
type CreateUserInput struct {
	Username string
	Password string
	Role     domain.Role
	AdminID  *int64
}

// EditUserInput carries the changes to an account. Nil means untouched;
// SetAdmin must be true for AdminID (including nil) to be applied.
type EditUserInput struct {
	Username *string
	Password *string
	Role     *domain.Role
	SetAdmin bool
	AdminID  *int64
}

// UserService manages accounts. Everything except an admin creating users
// under themselves is superadmin-only.
type UserService struct {
	users     domain.UserRepository
	authz     *security.AuthorizationService
	assignees *AssigneeCache
	logger    *slog.Logger
}

// NewUserService creates a new user service
func NewUserService(
	users domain.UserRepository,
	authz *security.AuthorizationService,
	assignees *AssigneeCache,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	if assignees == nil {
		assignees = NewAssigneeCache()
	}
	return &UserService{users: users, authz: authz, assignees: assignees, logger: logger}
}

func validateUsername(username string, ve *domain.ValidationError) {
	switch {
	case username == "":
		ve.Add("username", "this field is required")
	case len(username) > maxUsernameLength:
		ve.Add("username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))
	case !usernamePattern.MatchString(username):
		ve.Add("username", "may contain only letters, digits and @/./+/-/_")
	}
}

// checkAdminRef validates that adminID names an admin account. lookup
// share-locks the admin row, so a concurrent demotion waits for the caller.
func checkAdminRef(lookup domain.UserLookup, adminID int64, ve *domain.ValidationError) error {
	admin, err := lookup(adminID)
	if err != nil {
		return fmt.Errorf("load admin: %w", err)
	}
	switch {
	case admin == nil:
		ve.Add("admin_ref", "admin does not exist")
	case admin.Role != domain.RoleAdmin:
		ve.Add("admin_ref", "must reference an admin account")
	}
	return nil
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string, selfID int64) error {
	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("check username: %w", err)
	}
	if existing.ID != selfID {
		return fmt.Errorf("username %q is taken: %w", username, domain.ErrConflict)
	}
	return nil
}

// CreateUser creates an account
func (s *UserService) CreateUser(ctx context.Context, actor *domain.User, in CreateUserInput) (*domain.User, error) {
	candidate := &domain.User{
		Username: strings.TrimSpace(in.Username),
		Role:     in.Role,
		AdminID:  in.AdminID,
	}
	if actor != nil && actor.Role == domain.RoleAdmin {
		if candidate.Role == "" {
			candidate.Role = domain.RoleUser
		}
		if candidate.AdminID == nil {
			id := actor.ID
			candidate.AdminID = &id
		}
	}
	if err := s.authz.Authorize(actor, security.ActionCreate, security.UserResource(candidate)); err != nil {
		return nil, err
	}

	ve := domain.NewValidationError()
	validateUsername(candidate.Username, ve)
	if err := auth.ValidatePassword(in.Password); err != nil {
		ve.Add("password", err.Error())
	}
	if !candidate.Role.Valid() {
		ve.Add("role", fmt.Sprintf("%q is not a valid role", candidate.Role))
	}
	if candidate.AdminID != nil && candidate.Role != domain.RoleUser {
		ve.Add("admin_ref", "only user accounts can be assigned to an admin")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	if err := s.ensureUsernameFree(ctx, candidate.Username, 0); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	candidate.PasswordHash = hash

	err = s.users.Create(ctx, candidate, func(u *domain.User, lookup domain.UserLookup) error {
		if u.AdminID == nil {
			return nil
		}
		ve := domain.NewValidationError()
		if err := checkAdminRef(lookup, *u.AdminID, ve); err != nil {
			return err
		}
		return ve.Err()
	})
	if err != nil {
		return nil, err
	}
	s.assignees.Invalidate(assigneeKeyPrefix)

	s.logger.Info("user created",
		slog.Int64("user_id", candidate.ID),
		slog.String("role", string(candidate.Role)),
		slog.Int64("actor_id", actor.ID),
	)
	return candidate, nil
}

// EditUser changes an account. Moving away from role=user drops the admin
// assignment; demoting an admin releases the users they managed.
func (s *UserService) EditUser(ctx context.Context, actor *domain.User, id int64, in EditUserInput) (*domain.User, error) {
	if err := s.authz.Authorize(actor, security.ActionEdit, security.UserCollection()); err != nil {
		return nil, err
	}

	ve := domain.NewValidationError()
	var username string
	if in.Username != nil {
		username = strings.TrimSpace(*in.Username)
		validateUsername(username, ve)
	}
	var hash string
	if in.Password != nil {
		if err := auth.ValidatePassword(*in.Password); err != nil {
			ve.Add("password", err.Error())
		}
	}
	if in.Role != nil && !in.Role.Valid() {
		ve.Add("role", fmt.Sprintf("%q is not a valid role", *in.Role))
	}
	if in.SetAdmin && in.AdminID != nil && *in.AdminID == id {
		ve.Add("admin_ref", "a user cannot be their own admin")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	if in.Username != nil {
		if err := s.ensureUsernameFree(ctx, username, id); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		var err error
		if hash, err = auth.HashPassword(*in.Password); err != nil {
			return nil, err
		}
	}

	var previousRole domain.Role
	updated, err := s.users.Update(ctx, id, func(u *domain.User, refs domain.UserRefs, lookup domain.UserLookup) error {
		if err := s.authz.Authorize(actor, security.ActionEdit, security.UserResource(u)); err != nil {
			return err
		}
		previousRole = u.Role
		ve := domain.NewValidationError()

		if in.Username != nil {
			u.Username = username
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		if in.Role != nil && *in.Role != u.Role {
			if u.ID == actor.ID {
				ve.Add("role", "you cannot change your own role")
			}
			if *in.Role != domain.RoleUser && refs.AssignedTasks > 0 {
				ve.Add("role", fmt.Sprintf("user still has %d assigned tasks", refs.AssignedTasks))
			}
			u.Role = *in.Role
		}
		if in.SetAdmin {
			u.AdminID = in.AdminID
		}
		if u.Role != domain.RoleUser {
			if in.SetAdmin && in.AdminID != nil {
				ve.Add("admin_ref", "only user accounts can be assigned to an admin")
			}
			u.AdminID = nil
		} else if in.SetAdmin && in.AdminID != nil {
			if err := checkAdminRef(lookup, *in.AdminID, ve); err != nil {
				return err
			}
		}
		return ve.Err()
	})
	if err != nil {
		return nil, err
	}
	s.assignees.Invalidate(assigneeKeyPrefix)

	attrs := []any{slog.Int64("user_id", id), slog.Int64("actor_id", actor.ID)}
	if previousRole != updated.Role {
		attrs = append(attrs,
			slog.String("from_role", string(previousRole)),
			slog.String("to_role", string(updated.Role)),
		)
	}
	s.logger.Info("user updated", attrs...)
	return updated, nil
}

// DeleteUser removes an account together with its tasks
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, id int64) error {
	if err := s.authz.Authorize(actor, security.ActionDelete, security.UserCollection()); err != nil {
		return err
	}

	err := s.users.Delete(ctx, id, func(u *domain.User) error {
		if u.ID == actor.ID {
			return domain.FieldError("non_field", "you cannot delete your own account")
		}
		return s.authz.Authorize(actor, security.ActionDelete, security.UserResource(u))
	})
	if err != nil {
		return err
	}
	s.assignees.Invalidate(assigneeKeyPrefix)

	s.logger.Info("user deleted", slog.Int64("user_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// ListUsers returns accounts matching filter
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User, filter domain.UserFilter) ([]*domain.User, error) {
	if err := s.authz.Authorize(actor, security.ActionList, security.UserCollection()); err != nil {
		return nil, err
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, domain.FieldError("role", fmt.Sprintf("%q is not a valid role", *filter.Role))
	}
	return s.users.List(ctx, filter)
}

// GetUser returns a single account
func (s *UserService) GetUser(ctx context.Context, actor *domain.User, id int64) (*domain.User, error) {
	if err := s.authz.Authorize(actor, security.ActionView, security.UserCollection()); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor, security.ActionView, security.UserResource(u)); err != nil {
		return nil, err
	}
	return u, nil
}
