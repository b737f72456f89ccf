package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// ValidTicketStatus reports whether the value is a known status.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// ValidTicketPriority reports whether the value is a known priority.
func ValidTicketPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
// Invariant: ClosedAt is non-nil iff Status == closed.
type Ticket struct {
	ID           int64
	Title        string
	Description  string
	Status       TicketStatus
	Priority     TicketPriority
	DepartmentID int64
	UserID       int64
	AgentID      *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// Snapshot is the full set of a ticket's tracked field values at a
// point in time, keyed by field name. It is the input shape for diffs.
func (t *Ticket) Snapshot() map[string]any {
	snap := map[string]any{
		"title":         t.Title,
		"description":   t.Description,
		"status":        string(t.Status),
		"priority":      string(t.Priority),
		"department_id": t.DepartmentID,
		"user_id":       t.UserID,
	}
	if t.AgentID != nil {
		snap["agent_id"] = *t.AgentID
	} else {
		snap["agent_id"] = nil
	}
	return snap
}

// TicketFields is the ordered list of fields the diff engine tracks for
// tickets. Order determines audit entry order on multi-field updates.
var TicketFields = []string{
	"title",
	"description",
	"status",
	"priority",
	"department_id",
	"agent_id",
}
