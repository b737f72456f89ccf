package domain

import "time"

// ActionType identifies what kind of change an activity entry records.
type ActionType string

const (
	ActionTicketCreated           ActionType = "ticket_created"
	ActionTicketUpdated           ActionType = "ticket_updated"
	ActionTicketStatusChanged     ActionType = "ticket_status_changed"
	ActionTicketPriorityChanged   ActionType = "ticket_priority_changed"
	ActionTicketAssigneeChanged   ActionType = "ticket_assignee_changed"
	ActionTicketDepartmentChanged ActionType = "ticket_department_changed"
	ActionTicketDeleted           ActionType = "ticket_deleted"
	ActionCommentAdded            ActionType = "comment_added"
	ActionCommentDeleted          ActionType = "comment_deleted"
	ActionDepartmentCreated       ActionType = "department_created"
	ActionDepartmentUpdated       ActionType = "department_updated"
	ActionDepartmentDeleted       ActionType = "department_deleted"
	ActionUserCreated             ActionType = "user_created"
	ActionUserUpdated             ActionType = "user_updated"
	ActionUserDeleted             ActionType = "user_deleted"
)

// TargetType identifies the entity an activity entry refers to.
type TargetType string

const (
	TargetTicket     TargetType = "ticket"
	TargetUser       TargetType = "user"
	TargetDepartment TargetType = "department"
)

// ActivityLogEntry is an immutable audit record. Actor username and
// role are denormalized so the entry stays meaningful after the actor
// is deleted. OldValue/NewValue hold a stable text encoding of the
// before/after values, or nil when there is no prior/next state.
type ActivityLogEntry struct {
	ID            int64
	ActorID       int64
	ActorUsername string
	ActorRole     Role
	ActionType    ActionType
	Description   string
	TargetType    TargetType
	TargetID      int64
	OldValue      *string
	NewValue      *string
	CreatedAt     time.Time
}
