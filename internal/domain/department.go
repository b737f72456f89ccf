package domain

import "time"

// Department represents a support area that tickets are filed against.
// Name is unique across the table.
type Department struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
