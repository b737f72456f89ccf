package events

import (
	"time"

	"github.com/opsdesk/helpdesk/internal/diff"
	"github.com/opsdesk/helpdesk/internal/domain"
)

// Kind enumerates mutation event identifiers.
type Kind string

const (
	KindTicketCreated Kind = "ticket_created"
	KindTicketUpdated Kind = "ticket_updated"
	KindTicketDeleted Kind = "ticket_deleted"
	KindCommentAdded  Kind = "comment_added"
)

// Event describes one committed mutation. It is published exactly once
// per mutation and carries the single shared diff computed by the
// orchestrator, so every subscriber describes the same change.
type Event struct {
	ID        string
	Kind      Kind
	Actor     domain.Actor
	Ticket    *domain.Ticket
	Changes   []diff.Change
	Comment   *domain.Comment
	PrevAgent *int64
	Timestamp time.Time
}
