package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/audit"
	"github.com/opsdesk/helpdesk/internal/diff"
	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/events"
	"github.com/opsdesk/helpdesk/internal/notify"
	"github.com/opsdesk/helpdesk/internal/policy"
	"github.com/opsdesk/helpdesk/internal/repository"
	apperrors "github.com/opsdesk/helpdesk/pkg/util"
)

// TicketService orchestrates ticket mutations: policy check, apply,
// diff, audit, notify. The diff for a mutation is computed exactly once
// and shared by the audit entries and the notification event.
type TicketService struct {
	tickets       repository.TicketRepository
	comments      repository.CommentRepository
	users         repository.UserRepository
	departments   repository.DepartmentRepository
	activity      repository.ActivityRepository
	notifications repository.NotificationRepository
	policies      *policy.Evaluator
	diffs         *diff.Engine
	recorder      *audit.Recorder
	dispatcher    events.Dispatcher
	locks         *entityLocks
	logger        *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	CommentRepo      repository.CommentRepository
	UserRepo         repository.UserRepository
	DepartmentRepo   repository.DepartmentRepository
	ActivityRepo     repository.ActivityRepository
	NotificationRepo repository.NotificationRepository
	Policies         *policy.Evaluator
	Diffs            *diff.Engine
	Recorder         *audit.Recorder
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:       deps.TicketRepo,
		comments:      deps.CommentRepo,
		users:         deps.UserRepo,
		departments:   deps.DepartmentRepo,
		activity:      deps.ActivityRepo,
		notifications: deps.NotificationRepo,
		policies:      deps.Policies,
		diffs:         deps.Diffs,
		recorder:      deps.Recorder,
		dispatcher:    deps.Dispatcher,
		locks:         newEntityLocks(),
		logger:        logger,
	}
}

// TicketCreateInput describes ticket creation payload. OnBehalfOf lets
// an admin file a ticket for a client.
type TicketCreateInput struct {
	Title        string
	Description  string
	Priority     domain.TicketPriority
	DepartmentID int64
	OnBehalfOf   *int64
}

// TicketUpdateInput carries the requested field changes. Nil pointers
// mean "no change requested". ClearAgent distinguishes unassignment
// from leaving the assignee untouched.
type TicketUpdateInput struct {
	Title        *string
	Description  *string
	Status       *domain.TicketStatus
	Priority     *domain.TicketPriority
	DepartmentID *int64
	AgentID      *int64
	ClearAgent   bool
}

// fieldMap renders the input as the requested-change map consumed by
// the diff engine. Absent fields stay absent.
func (in TicketUpdateInput) fieldMap() map[string]any {
	fields := map[string]any{}
	if in.Title != nil {
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		fields["status"] = string(*in.Status)
	}
	if in.Priority != nil {
		fields["priority"] = string(*in.Priority)
	}
	if in.DepartmentID != nil {
		fields["department_id"] = *in.DepartmentID
	}
	if in.ClearAgent {
		fields["agent_id"] = nil
	} else if in.AgentID != nil {
		fields["agent_id"] = *in.AgentID
	}
	return fields
}

// CreateTicket files a new ticket. Clients file for themselves; admins
// may file on behalf of another user.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if actor.Role != domain.RoleClient && actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only clients and admins can open tickets")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewInvalidInput("title required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !domain.ValidTicketPriority(priority) {
		return nil, apperrors.NewInvalidInput("unknown priority", map[string]any{"priority": input.Priority})
	}
	if _, err := s.departments.GetByID(ctx, input.DepartmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidInput("department does not exist", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	ownerID := actor.ID
	if input.OnBehalfOf != nil {
		if actor.Role != domain.RoleAdmin {
			return nil, apperrors.NewForbidden("only admins can file tickets on behalf of another user")
		}
		owner, err := s.users.GetByID(ctx, *input.OnBehalfOf)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewInvalidInput("target user does not exist", map[string]any{"user_id": *input.OnBehalfOf})
			}
			return nil, apperrors.NewInternalError(err)
		}
		ownerID = owner.ID
	}

	ticket := &domain.Ticket{
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		DepartmentID: input.DepartmentID,
		UserID:       ownerID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, mapStoreError(err, "ticket")
	}

	s.recorder.Record(ctx, actor, domain.ActionTicketCreated,
		fmt.Sprintf("%s opened ticket #%d: %s", actor.Username, ticket.ID, notify.Preview(ticket.Title, 50)),
		domain.TargetTicket, ticket.ID, nil, ticket.Snapshot())
	s.publish(ctx, events.Event{
		Kind:   events.KindTicketCreated,
		Actor:  actor,
		Ticket: ticket,
	})
	return ticket, nil
}

// UpdateTicket applies the requested field changes in one store write.
// When no requested field differs from the current state the call is an
// idempotent no-op: no write, no audit entries, no notifications.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Actor, id int64, input TicketUpdateInput) (*domain.Ticket, error) {
	unlock := s.locks.lock(domain.TargetTicket, id)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessTicket(actor, ticket, policy.ActionUpdate) {
		return nil, apperrors.NewForbidden("not allowed to update this ticket")
	}
	if err := s.validateUpdate(ctx, input); err != nil {
		return nil, err
	}

	oldSnap := ticket.Snapshot()
	oldSnap["closed_at"] = ticket.ClosedAt
	changes := s.diffs.Compute(ctx, oldSnap, input.fieldMap(), domain.TicketFields)
	if len(changes) == 0 {
		return ticket, nil
	}

	prevAgent := ticket.AgentID
	s.applyChanges(ticket, input, changes)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, mapStoreError(err, "ticket")
	}

	locked = false
	unlock()

	for _, change := range changes {
		s.recorder.Record(ctx, actor, actionForTicketField(change.Field),
			describeTicketChange(actor, ticket.ID, change),
			domain.TargetTicket, ticket.ID, change.Old, change.New)
	}
	s.publish(ctx, events.Event{
		Kind:      events.KindTicketUpdated,
		Actor:     actor,
		Ticket:    ticket,
		Changes:   changes,
		PrevAgent: prevAgent,
	})
	return ticket, nil
}

// DeleteTicket removes a ticket and everything referencing it, in
// dependency order: comments, activity entries, notifications, then
// the ticket row.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Actor, id int64) error {
	unlock := s.locks.lock(domain.TargetTicket, id)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessTicket(actor, ticket, policy.ActionDelete) {
		return apperrors.NewForbidden("not allowed to delete this ticket")
	}

	if err := s.comments.DeleteByTicket(ctx, id); err != nil {
		return mapStoreError(err, "ticket comments")
	}
	if err := s.activity.DeleteByTarget(ctx, domain.TargetTicket, id); err != nil {
		return mapStoreError(err, "ticket activity")
	}
	if err := s.notifications.DeleteByRelated(ctx, domain.TargetTicket, id); err != nil {
		return mapStoreError(err, "ticket notifications")
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return mapStoreError(err, "ticket")
	}

	locked = false
	unlock()

	s.recorder.Record(ctx, actor, domain.ActionTicketDeleted,
		fmt.Sprintf("%s deleted ticket #%d: %s", actor.Username, ticket.ID, notify.Preview(ticket.Title, 50)),
		domain.TargetTicket, ticket.ID, ticket.Snapshot(), nil)
	s.publish(ctx, events.Event{
		Kind:   events.KindTicketDeleted,
		Actor:  actor,
		Ticket: ticket,
	})
	return nil
}

// AddComment appends a message to a ticket thread.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, ticketID int64, text string) (*domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewInvalidInput("text required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessTicket(actor, ticket, policy.ActionComment) {
		return nil, apperrors.NewForbidden("not allowed to comment on this ticket")
	}

	comment := &domain.Comment{
		TicketID: ticket.ID,
		UserID:   actor.ID,
		Text:     text,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, mapStoreError(err, "comment")
	}

	s.recorder.Record(ctx, actor, domain.ActionCommentAdded,
		fmt.Sprintf("%s commented on ticket #%d: %s", actor.Username, ticket.ID, notify.Preview(text, 50)),
		domain.TargetTicket, ticket.ID, nil, text)
	s.publish(ctx, events.Event{
		Kind:    events.KindCommentAdded,
		Actor:   actor,
		Ticket:  ticket,
		Comment: comment,
	})
	return comment, nil
}

// DeleteComment removes one comment. Allowed to the comment's author,
// or to anyone the parent ticket's delete policy admits.
func (s *TicketService) DeleteComment(ctx context.Context, actor domain.Actor, commentID int64) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("comment", map[string]any{"id": commentID})
		}
		return apperrors.NewInternalError(err)
	}
	ticket, err := s.tickets.GetByID(ctx, comment.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"id": comment.TicketID})
		}
		return apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessComment(actor, comment, ticket, policy.ActionDelete) {
		return apperrors.NewForbidden("not allowed to delete this comment")
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("comment", map[string]any{"id": commentID})
		}
		return mapStoreError(err, "comment")
	}

	s.recorder.Record(ctx, actor, domain.ActionCommentDeleted,
		fmt.Sprintf("%s deleted a comment on ticket #%d", actor.Username, ticket.ID),
		domain.TargetTicket, ticket.ID, comment.Text, nil)
	return nil
}

// GetTicket fetches a ticket enforcing the read policy.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !s.policies.CanAccessTicket(actor, ticket, policy.ActionRead) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}
	return ticket, nil
}

// ListTickets returns tickets scoped by role: clients see their own,
// agents see their department, admins see everything.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter repository.TicketFilter) ([]domain.Ticket, error) {
	switch actor.Role {
	case domain.RoleClient:
		filter.UserID = &actor.ID
	case domain.RoleAgent:
		if user, err := s.users.GetByID(ctx, actor.ID); err == nil && user.DepartmentID != nil {
			filter.DepartmentID = user.DepartmentID
		}
	case domain.RoleAdmin:
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// ListComments returns a ticket's thread, enforcing the read policy.
func (s *TicketService) ListComments(ctx context.Context, actor domain.Actor, ticketID int64) ([]domain.Comment, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return comments, nil
}

// ListActivity returns a ticket's audit trail, enforcing the read policy.
func (s *TicketService) ListActivity(ctx context.Context, actor domain.Actor, ticketID int64, limit, offset int) ([]domain.ActivityLogEntry, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.activity.ListByTarget(ctx, domain.TargetTicket, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

func (s *TicketService) validateUpdate(ctx context.Context, input TicketUpdateInput) error {
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return apperrors.NewInvalidInput("title cannot be empty", nil)
	}
	if input.Status != nil && !domain.ValidTicketStatus(*input.Status) {
		return apperrors.NewInvalidInput("unknown status", map[string]any{"status": *input.Status})
	}
	if input.Priority != nil && !domain.ValidTicketPriority(*input.Priority) {
		return apperrors.NewInvalidInput("unknown priority", map[string]any{"priority": *input.Priority})
	}
	if input.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *input.DepartmentID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewInvalidInput("department does not exist", map[string]any{"department_id": *input.DepartmentID})
			}
			return apperrors.NewInternalError(err)
		}
	}
	if input.AgentID != nil && !input.ClearAgent {
		agent, err := s.users.GetByID(ctx, *input.AgentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewInvalidInput("assignee does not exist", map[string]any{"agent_id": *input.AgentID})
			}
			return apperrors.NewInternalError(err)
		}
		if agent.Role != domain.RoleAgent {
			return apperrors.NewInvalidInput("assignee is not an agent", map[string]any{"agent_id": *input.AgentID})
		}
	}
	return nil
}

// applyChanges stages the requested fields onto the ticket, including
// the derived closed_at adjustment carried in the diff.
func (s *TicketService) applyChanges(ticket *domain.Ticket, input TicketUpdateInput, changes []diff.Change) {
	if input.Title != nil {
		ticket.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		ticket.Status = *input.Status
	}
	if input.Priority != nil {
		ticket.Priority = *input.Priority
	}
	if input.DepartmentID != nil {
		ticket.DepartmentID = *input.DepartmentID
	}
	if input.ClearAgent {
		ticket.AgentID = nil
	} else if input.AgentID != nil {
		agentID := *input.AgentID
		ticket.AgentID = &agentID
	}
	for _, change := range changes {
		if change.Field != "closed_at" {
			continue
		}
		if ts, ok := change.New.(time.Time); ok {
			closedAt := ts
			ticket.ClosedAt = &closedAt
		} else {
			ticket.ClosedAt = nil
		}
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actionForTicketField(field string) domain.ActionType {
	switch field {
	case "status", "closed_at":
		return domain.ActionTicketStatusChanged
	case "priority":
		return domain.ActionTicketPriorityChanged
	case "agent_id":
		return domain.ActionTicketAssigneeChanged
	case "department_id":
		return domain.ActionTicketDepartmentChanged
	}
	return domain.ActionTicketUpdated
}

func describeTicketChange(actor domain.Actor, ticketID int64, change diff.Change) string {
	if change.Note != "" {
		return fmt.Sprintf("%s on ticket #%d (%s)", change.Note, ticketID, actor.Username)
	}
	return fmt.Sprintf("%s changed %s of ticket #%d from %s to %s",
		actor.Username, change.Field, ticketID, renderAuditValue(change.Old), renderAuditValue(change.New))
}

func renderAuditValue(value any) string {
	if value == nil {
		return "none"
	}
	return fmt.Sprintf("%v", value)
}

// mapStoreError translates low-level store failures to the error
// taxonomy: unique violations become Conflict, reference violations
// become DependencyError.
func mapStoreError(err error, resource string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperrors.NewConflict(fmt.Sprintf("%s already exists", resource), map[string]any{"constraint": pgErr.ConstraintName})
		case "23503":
			return apperrors.NewDependencyError(fmt.Sprintf("%s is referenced by other rows", resource), map[string]any{"constraint": pgErr.ConstraintName})
		}
	}
	return apperrors.NewInternalError(err)
}
