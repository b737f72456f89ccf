package domain

import "time"

// Comment is a message on a ticket thread. Append-only; deletable only
// by its author or an admin.
type Comment struct {
	ID        int64
	TicketID  int64
	UserID    int64
	Text      string
	CreatedAt time.Time
}
