package dto

import (
	"time"

	"github.com/opsdesk/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Priority     domain.TicketPriority `json:"priority"`
	DepartmentID int64                 `json:"department_id"`
	OnBehalfOf   *int64                `json:"on_behalf_of,omitempty"`
}

// UpdateTicketRequest payload. Absent fields are left untouched;
// "clear_agent": true unassigns the ticket.
type UpdateTicketRequest struct {
	Title        *string                `json:"title"`
	Description  *string                `json:"description"`
	Status       *domain.TicketStatus   `json:"status"`
	Priority     *domain.TicketPriority `json:"priority"`
	DepartmentID *int64                 `json:"department_id"`
	AgentID      *int64                 `json:"agent_id"`
	ClearAgent   bool                   `json:"clear_agent"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// TicketResponse is the ticket wire shape.
type TicketResponse struct {
	ID           int64                 `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	DepartmentID int64                 `json:"department_id"`
	UserID       int64                 `json:"user_id"`
	AgentID      *int64                `json:"agent_id"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ClosedAt     *time.Time            `json:"closed_at"`
}

// CommentResponse is the comment wire shape.
type CommentResponse struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityResponse is the audit entry wire shape.
type ActivityResponse struct {
	ID            int64       `json:"id"`
	ActorID       int64       `json:"actor_id"`
	ActorUsername string      `json:"actor_username"`
	ActorRole     domain.Role `json:"actor_role"`
	ActionType    string      `json:"action_type"`
	Description   string      `json:"description"`
	OldValue      *string     `json:"old_value"`
	NewValue      *string     `json:"new_value"`
	CreatedAt     time.Time   `json:"created_at"`
}

// FromTicket maps the domain model.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		DepartmentID: t.DepartmentID,
		UserID:       t.UserID,
		AgentID:      t.AgentID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		ClosedAt:     t.ClosedAt,
	}
}

// FromComment maps the domain model.
func FromComment(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		TicketID:  c.TicketID,
		UserID:    c.UserID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}

// FromActivity maps the domain model.
func FromActivity(e *domain.ActivityLogEntry) ActivityResponse {
	return ActivityResponse{
		ID:            e.ID,
		ActorID:       e.ActorID,
		ActorUsername: e.ActorUsername,
		ActorRole:     e.ActorRole,
		ActionType:    string(e.ActionType),
		Description:   e.Description,
		OldValue:      e.OldValue,
		NewValue:      e.NewValue,
		CreatedAt:     e.CreatedAt,
	}
}
