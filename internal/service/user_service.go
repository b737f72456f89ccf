package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/audit"
	"github.com/opsdesk/helpdesk/internal/auth"
	"github.com/opsdesk/helpdesk/internal/cache"
	"github.com/opsdesk/helpdesk/internal/diff"
	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/policy"
	"github.com/opsdesk/helpdesk/internal/repository"
	apperrors "github.com/opsdesk/helpdesk/pkg/util"
)

// UserService orchestrates user record mutations. Like departments, a
// multi-field user update is audited as one composed entry.
type UserService struct {
	users       repository.UserRepository
	departments repository.DepartmentRepository
	policies    *policy.Evaluator
	diffs       *diff.Engine
	recorder    *audit.Recorder
	names       *cache.NameCache
	locks       *entityLocks
	bcryptCost  int
	logger      *zap.Logger
}

// UserDependencies bundles collaborators.
type UserDependencies struct {
	UserRepo       repository.UserRepository
	DepartmentRepo repository.DepartmentRepository
	Policies       *policy.Evaluator
	Diffs          *diff.Engine
	Recorder       *audit.Recorder
	Names          *cache.NameCache
	BcryptCost     int
	Logger         *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:       deps.UserRepo,
		departments: deps.DepartmentRepo,
		policies:    deps.Policies,
		diffs:       deps.Diffs,
		recorder:    deps.Recorder,
		names:       deps.Names,
		locks:       newEntityLocks(),
		bcryptCost:  deps.BcryptCost,
		logger:      logger,
	}
}

// userFields is the tracked field order for user diffs. Password
// hashes are deliberately not tracked.
var userFields = []string{"username", "email", "role", "department_id"}

func userSnapshot(user *domain.User) map[string]any {
	snap := map[string]any{
		"username": user.Username,
		"email":    user.Email,
		"role":     string(user.Role),
	}
	if user.DepartmentID != nil {
		snap["department_id"] = *user.DepartmentID
	} else {
		snap["department_id"] = nil
	}
	return snap
}

// UserCreateInput describes admin user creation.
type UserCreateInput struct {
	Username     string
	Email        string
	Password     string
	Role         domain.Role
	DepartmentID *int64
}

// UserUpdateInput carries requested changes; nil means untouched.
// Role changes are admin-only by policy.
type UserUpdateInput struct {
	Username        *string
	Email           *string
	Role            *domain.Role
	DepartmentID    *int64
	ClearDepartment bool
}

// CreateUser adds a user record. Admin only; registration of clients
// goes through AuthService instead.
func (s *UserService) CreateUser(ctx context.Context, actor domain.Actor, input UserCreateInput) (*domain.User, error) {
	if !s.policies.CanAccessUser(actor, nil, policy.ActionUpdate) {
		return nil, apperrors.NewForbidden("only admins can create users")
	}
	user, err := s.buildUser(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapStoreError(err, "user")
	}

	s.recorder.Record(ctx, actor, domain.ActionUserCreated,
		fmt.Sprintf("%s created user %q with role %s", actor.Username, user.Username, user.Role),
		domain.TargetUser, user.ID, nil, userSnapshot(user))
	return user, nil
}

// UpdateUser applies requested changes to a user record and writes one
// composed audit entry.
func (s *UserService) UpdateUser(ctx context.Context, actor domain.Actor, id int64, input UserUpdateInput) (*domain.User, error) {
	unlock := s.locks.lock(domain.TargetUser, id)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessUser(actor, user, policy.ActionUpdate) {
		return nil, apperrors.NewForbidden("not allowed to update this user")
	}
	if err := s.validateUpdate(ctx, input); err != nil {
		return nil, err
	}

	oldSnap := userSnapshot(user)
	requested := map[string]any{}
	if input.Username != nil {
		requested["username"] = strings.TrimSpace(*input.Username)
	}
	if input.Email != nil {
		requested["email"] = strings.TrimSpace(*input.Email)
	}
	if input.Role != nil {
		requested["role"] = string(*input.Role)
	}
	if input.ClearDepartment {
		requested["department_id"] = nil
	} else if input.DepartmentID != nil {
		requested["department_id"] = *input.DepartmentID
	}
	changes := s.diffs.Compute(ctx, oldSnap, requested, userFields)
	if len(changes) == 0 {
		return user, nil
	}

	if input.Username != nil {
		user.Username = strings.TrimSpace(*input.Username)
	}
	if input.Email != nil {
		user.Email = strings.TrimSpace(*input.Email)
	}
	if input.Role != nil {
		user.Role = *input.Role
	}
	if input.ClearDepartment {
		user.DepartmentID = nil
	} else if input.DepartmentID != nil {
		deptID := *input.DepartmentID
		user.DepartmentID = &deptID
	}
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, mapStoreError(err, "user")
	}

	locked = false
	unlock()

	if s.names != nil {
		s.names.InvalidateUser(ctx, user.ID)
	}
	s.recorder.Record(ctx, actor, domain.ActionUserUpdated,
		composedDescription(actor, "user", user.ID, changes),
		domain.TargetUser, user.ID, oldSnap, userSnapshot(user))
	return user, nil
}

// DeleteUser removes a user record. Tickets that referenced the user
// keep their dangling owner/assignee ids; the store tolerates them.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Actor, id int64) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessUser(actor, user, policy.ActionDelete) {
		return apperrors.NewForbidden("only admins can delete users")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return mapStoreError(err, "user")
	}

	if s.names != nil {
		s.names.InvalidateUser(ctx, user.ID)
	}
	s.recorder.Record(ctx, actor, domain.ActionUserDeleted,
		fmt.Sprintf("%s deleted user %q", actor.Username, user.Username),
		domain.TargetUser, user.ID, userSnapshot(user), nil)
	return nil
}

// GetUser fetches a user record; users may read their own.
func (s *UserService) GetUser(ctx context.Context, actor domain.Actor, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessUser(actor, user, policy.ActionRead) {
		return nil, apperrors.NewForbidden("not allowed to view this user")
	}
	return user, nil
}

func (s *UserService) buildUser(ctx context.Context, input UserCreateInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperrors.NewInvalidInput("username required", nil)
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, apperrors.NewInvalidInput("email required", nil)
	}
	if input.Password == "" {
		return nil, apperrors.NewInvalidInput("password required", nil)
	}
	if !domain.ValidRole(input.Role) {
		return nil, apperrors.NewInvalidInput("unknown role", map[string]any{"role": input.Role})
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("username already in use", map[string]any{"username": username})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewInternalError(err)
	}
	if input.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *input.DepartmentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewInvalidInput("department does not exist", map[string]any{"department_id": *input.DepartmentID})
			}
			return nil, apperrors.NewInternalError(err)
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.User{
		Username:     username,
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		Role:         input.Role,
		DepartmentID: input.DepartmentID,
	}, nil
}

func (s *UserService) validateUpdate(ctx context.Context, input UserUpdateInput) error {
	if input.Username != nil && strings.TrimSpace(*input.Username) == "" {
		return apperrors.NewInvalidInput("username cannot be empty", nil)
	}
	if input.Role != nil && !domain.ValidRole(*input.Role) {
		return apperrors.NewInvalidInput("unknown role", map[string]any{"role": *input.Role})
	}
	if input.DepartmentID != nil && !input.ClearDepartment {
		if _, err := s.departments.GetByID(ctx, *input.DepartmentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewInvalidInput("department does not exist", map[string]any{"department_id": *input.DepartmentID})
			}
			return apperrors.NewInternalError(err)
		}
	}
	return nil
}
