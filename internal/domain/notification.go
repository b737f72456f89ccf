package domain

import "time"

// NotificationType categorizes what a notification is about.
type NotificationType string

const (
	NotificationTicketCreated   NotificationType = "ticket_created"
	NotificationStatusChanged   NotificationType = "status_changed"
	NotificationPriorityChanged NotificationType = "priority_changed"
	NotificationTicketAssigned  NotificationType = "ticket_assigned"
	NotificationCommentAdded    NotificationType = "comment_added"
)

// Notification is a per-recipient message produced by the fan-out
// dispatcher. RelatedID/RelatedType are a weak reference to the
// subject entity; the subject may be deleted independently.
type Notification struct {
	ID          int64
	RecipientID int64
	Message     string
	Type        NotificationType
	RelatedID   int64
	RelatedType TargetType
	IsRead      bool
	CreatedAt   time.Time
}
