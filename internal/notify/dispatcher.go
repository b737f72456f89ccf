package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/config"
	"github.com/opsdesk/helpdesk/internal/diff"
	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/events"
	"github.com/opsdesk/helpdesk/internal/repository"
)

// Dispatcher fans one mutation event out to the interested
// stakeholders: ticket owner, assigned agent, department agents, or
// admins, depending on the event kind. Recipients are deduplicated and
// the acting user never receives a notification for their own action.
// Each recipient write is independent; one failure is logged and the
// loop continues.
type Dispatcher struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	cfg           config.NotificationConfig
	logger        *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(notifications repository.NotificationRepository, users repository.UserRepository, cfg config.NotificationConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = 50
	}
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		cfg:           cfg,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to mutation events.
func (d *Dispatcher) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.KindTicketCreated, d.HandleTicketCreated)
	dispatcher.Subscribe(events.KindTicketUpdated, d.HandleTicketUpdated)
	dispatcher.Subscribe(events.KindCommentAdded, d.HandleCommentAdded)
}

// HandleTicketCreated notifies all admins plus every agent in the
// ticket's department.
func (d *Dispatcher) HandleTicketCreated(ctx context.Context, event events.Event) error {
	ticket := event.Ticket
	if ticket == nil {
		return nil
	}
	recipients := newRecipientSet(event.Actor.ID)

	admins, err := d.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		d.logger.Warn("notification recipient lookup failed",
			zap.Error(err), zap.String("role", string(domain.RoleAdmin)))
	}
	for _, admin := range admins {
		recipients.add(admin.ID)
	}

	agents, err := d.users.ListAgentsByDepartment(ctx, ticket.DepartmentID)
	if err != nil {
		d.logger.Warn("notification recipient lookup failed",
			zap.Error(err), zap.Int64("department_id", ticket.DepartmentID))
	}
	for _, agent := range agents {
		recipients.add(agent.ID)
	}

	message := fmt.Sprintf("%s opened ticket #%d: %s (priority %s)",
		event.Actor.Username, ticket.ID, d.preview(ticket.Title), ticket.Priority)
	d.deliver(ctx, recipients, domain.Notification{
		Message:     message,
		Type:        domain.NotificationTicketCreated,
		RelatedID:   ticket.ID,
		RelatedType: domain.TargetTicket,
	})
	return nil
}

// HandleTicketUpdated selects recipients per changed field and writes
// one row per recipient with a message composed from the shared diff.
func (d *Dispatcher) HandleTicketUpdated(ctx context.Context, event events.Event) error {
	ticket := event.Ticket
	if ticket == nil || len(event.Changes) == 0 {
		return nil
	}
	recipients := newRecipientSet(event.Actor.ID)
	kind := domain.NotificationType("")

	for _, change := range event.Changes {
		switch change.Field {
		case "status":
			recipients.add(ticket.UserID)
			if ticket.AgentID != nil {
				recipients.add(*ticket.AgentID)
			}
			if kind == "" {
				kind = domain.NotificationStatusChanged
			}
		case "priority":
			recipients.add(ticket.UserID)
			if kind == "" {
				kind = domain.NotificationPriorityChanged
			}
		case "agent_id":
			if ticket.AgentID != nil {
				recipients.add(*ticket.AgentID)
			} else if d.cfg.NotifyPreviousAgentOnUnassign && event.PrevAgent != nil {
				recipients.add(*event.PrevAgent)
			}
			if kind == "" {
				kind = domain.NotificationTicketAssigned
			}
		}
	}
	if recipients.empty() {
		return nil
	}
	if kind == "" {
		kind = domain.NotificationStatusChanged
	}

	message := fmt.Sprintf("%s updated ticket #%d: %s",
		event.Actor.Username, ticket.ID, summarizeChanges(event.Changes))
	d.deliver(ctx, recipients, domain.Notification{
		Message:     message,
		Type:        kind,
		RelatedID:   ticket.ID,
		RelatedType: domain.TargetTicket,
	})
	return nil
}

// HandleCommentAdded notifies the ticket owner and the assigned agent.
// When the ticket has no assigned agent and the actor is not the owner,
// all admins are notified so the conversation is not orphaned.
func (d *Dispatcher) HandleCommentAdded(ctx context.Context, event events.Event) error {
	ticket := event.Ticket
	if ticket == nil || event.Comment == nil {
		return nil
	}
	recipients := newRecipientSet(event.Actor.ID)
	recipients.add(ticket.UserID)
	if ticket.AgentID != nil {
		recipients.add(*ticket.AgentID)
	} else if event.Actor.ID != ticket.UserID {
		admins, err := d.users.ListByRole(ctx, domain.RoleAdmin)
		if err != nil {
			d.logger.Warn("notification recipient lookup failed",
				zap.Error(err), zap.String("role", string(domain.RoleAdmin)))
		}
		for _, admin := range admins {
			recipients.add(admin.ID)
		}
	}

	message := fmt.Sprintf("%s commented on ticket #%d: %s",
		event.Actor.Username, ticket.ID, d.preview(event.Comment.Text))
	d.deliver(ctx, recipients, domain.Notification{
		Message:     message,
		Type:        domain.NotificationCommentAdded,
		RelatedID:   ticket.ID,
		RelatedType: domain.TargetTicket,
	})
	return nil
}

// deliver writes one notification row per selected recipient. Failures
// are independent: a failed write is logged and skipped.
func (d *Dispatcher) deliver(ctx context.Context, recipients *recipientSet, template domain.Notification) {
	for _, recipientID := range recipients.ids {
		notification := template
		notification.RecipientID = recipientID
		if err := d.notifications.Create(ctx, &notification); err != nil {
			d.logger.Warn("notification write failed",
				zap.Error(err),
				zap.Int64("recipient_id", recipientID),
				zap.String("type", string(template.Type)),
				zap.Int64("related_id", template.RelatedID))
		}
	}
}

func (d *Dispatcher) preview(text string) string {
	return Preview(text, d.cfg.PreviewLength)
}

// Preview bounds free text embedded in a notification message. Counted
// in runes so truncation never splits a multi-byte character.
func Preview(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func summarizeChanges(changes []diff.Change) string {
	parts := make([]string, 0, len(changes))
	for _, change := range changes {
		parts = append(parts, fmt.Sprintf("%s changed from %s to %s",
			change.Field, renderValue(change.Old), renderValue(change.New)))
	}
	return strings.Join(parts, "; ")
}

func renderValue(value any) string {
	if value == nil {
		return "none"
	}
	return fmt.Sprintf("%v", value)
}

// recipientSet is an ordered, deduplicated id set that silently drops
// the acting user.
type recipientSet struct {
	actorID int64
	seen    map[int64]struct{}
	ids     []int64
}

func newRecipientSet(actorID int64) *recipientSet {
	return &recipientSet{actorID: actorID, seen: make(map[int64]struct{})}
}

func (s *recipientSet) add(id int64) {
	if id == s.actorID {
		return
	}
	if _, dup := s.seen[id]; dup {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *recipientSet) empty() bool {
	return len(s.ids) == 0
}
