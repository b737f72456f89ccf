package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/audit"
	"github.com/opsdesk/helpdesk/internal/cache"
	"github.com/opsdesk/helpdesk/internal/diff"
	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/policy"
	"github.com/opsdesk/helpdesk/internal/repository"
	apperrors "github.com/opsdesk/helpdesk/pkg/util"
)

// DepartmentService orchestrates department mutations. Unlike tickets,
// a multi-field department update produces a single composed audit
// entry.
type DepartmentService struct {
	departments repository.DepartmentRepository
	tickets     repository.TicketRepository
	policies    *policy.Evaluator
	diffs       *diff.Engine
	recorder    *audit.Recorder
	names       *cache.NameCache
	locks       *entityLocks
	logger      *zap.Logger
}

// DepartmentDependencies bundles collaborators.
type DepartmentDependencies struct {
	DepartmentRepo repository.DepartmentRepository
	TicketRepo     repository.TicketRepository
	Policies       *policy.Evaluator
	Diffs          *diff.Engine
	Recorder       *audit.Recorder
	Names          *cache.NameCache
	Logger         *zap.Logger
}

// NewDepartmentService constructs the service.
func NewDepartmentService(deps DepartmentDependencies) *DepartmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{
		departments: deps.DepartmentRepo,
		tickets:     deps.TicketRepo,
		policies:    deps.Policies,
		diffs:       deps.Diffs,
		recorder:    deps.Recorder,
		names:       deps.Names,
		locks:       newEntityLocks(),
		logger:      logger,
	}
}

// departmentFields is the tracked field order for department diffs.
var departmentFields = []string{"name", "description"}

func departmentSnapshot(dept *domain.Department) map[string]any {
	return map[string]any{
		"name":        dept.Name,
		"description": dept.Description,
	}
}

// DepartmentInput carries create/update payloads. On update, nil
// pointers mean "no change requested".
type DepartmentInput struct {
	Name        *string
	Description *string
}

// CreateDepartment adds a department. Admin only; names are unique.
func (s *DepartmentService) CreateDepartment(ctx context.Context, actor domain.Actor, name, description string) (*domain.Department, error) {
	if !s.policies.CanAccessDepartment(actor, policy.ActionUpdate) {
		return nil, apperrors.NewForbidden("only admins can create departments")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewInvalidInput("name required", nil)
	}
	if _, err := s.departments.GetByName(ctx, name); err == nil {
		return nil, apperrors.NewConflict("department name already in use", map[string]any{"name": name})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewInternalError(err)
	}

	dept := &domain.Department{Name: name, Description: strings.TrimSpace(description)}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, mapStoreError(err, "department")
	}

	s.recorder.Record(ctx, actor, domain.ActionDepartmentCreated,
		fmt.Sprintf("%s created department %q", actor.Username, dept.Name),
		domain.TargetDepartment, dept.ID, nil, departmentSnapshot(dept))
	return dept, nil
}

// UpdateDepartment applies requested changes and writes one composed
// audit entry covering all of them.
func (s *DepartmentService) UpdateDepartment(ctx context.Context, actor domain.Actor, id int64, input DepartmentInput) (*domain.Department, error) {
	if !s.policies.CanAccessDepartment(actor, policy.ActionUpdate) {
		return nil, apperrors.NewForbidden("only admins can update departments")
	}

	unlock := s.locks.lock(domain.TargetDepartment, id)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.NewInvalidInput("name cannot be empty", nil)
	}

	oldSnap := departmentSnapshot(dept)
	requested := map[string]any{}
	if input.Name != nil {
		requested["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		requested["description"] = strings.TrimSpace(*input.Description)
	}
	changes := s.diffs.Compute(ctx, oldSnap, requested, departmentFields)
	if len(changes) == 0 {
		return dept, nil
	}

	if input.Name != nil {
		dept.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		dept.Description = strings.TrimSpace(*input.Description)
	}
	if err := s.departments.Update(ctx, dept); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"id": id})
		}
		return nil, mapStoreError(err, "department")
	}

	locked = false
	unlock()

	if s.names != nil {
		s.names.InvalidateDepartment(ctx, dept.ID)
	}
	s.recorder.Record(ctx, actor, domain.ActionDepartmentUpdated,
		composedDescription(actor, "department", dept.ID, changes),
		domain.TargetDepartment, dept.ID, oldSnap, departmentSnapshot(dept))
	return dept, nil
}

// DeleteDepartment removes a department. Blocked while any ticket still
// references it.
func (s *DepartmentService) DeleteDepartment(ctx context.Context, actor domain.Actor, id int64) error {
	if !s.policies.CanAccessDepartment(actor, policy.ActionDelete) {
		return apperrors.NewForbidden("only admins can delete departments")
	}

	unlock := s.locks.lock(domain.TargetDepartment, id)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("department", map[string]any{"id": id})
		}
		return apperrors.NewInternalError(err)
	}
	count, err := s.tickets.CountByDepartment(ctx, id)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if count > 0 {
		return apperrors.NewDependencyError("department has tickets", map[string]any{"ticket_count": count})
	}
	if err := s.departments.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("department", map[string]any{"id": id})
		}
		return mapStoreError(err, "department")
	}

	locked = false
	unlock()

	if s.names != nil {
		s.names.InvalidateDepartment(ctx, dept.ID)
	}
	s.recorder.Record(ctx, actor, domain.ActionDepartmentDeleted,
		fmt.Sprintf("%s deleted department %q", actor.Username, dept.Name),
		domain.TargetDepartment, dept.ID, departmentSnapshot(dept), nil)
	return nil
}

// GetDepartment fetches one department; reads are open to all roles.
func (s *DepartmentService) GetDepartment(ctx context.Context, actor domain.Actor, id int64) (*domain.Department, error) {
	if !s.policies.CanAccessDepartment(actor, policy.ActionRead) {
		return nil, apperrors.NewForbidden("not allowed")
	}
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return dept, nil
}

// ListDepartments returns all departments.
func (s *DepartmentService) ListDepartments(ctx context.Context, actor domain.Actor) ([]domain.Department, error) {
	if !s.policies.CanAccessDepartment(actor, policy.ActionRead) {
		return nil, apperrors.NewForbidden("not allowed")
	}
	depts, err := s.departments.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return depts, nil
}

// composedDescription renders all field changes of one update into a
// single human-readable sentence.
func composedDescription(actor domain.Actor, entity string, id int64, changes []diff.Change) string {
	parts := make([]string, 0, len(changes))
	for _, change := range changes {
		parts = append(parts, fmt.Sprintf("%s from %s to %s",
			change.Field, renderAuditValue(change.Old), renderAuditValue(change.New)))
	}
	return fmt.Sprintf("%s updated %s #%d: changed %s", actor.Username, entity, id, strings.Join(parts, ", "))
}
