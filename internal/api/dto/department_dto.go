package dto

import (
	"time"

	"github.com/opsdesk/helpdesk/internal/domain"
)

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateDepartmentRequest payload; absent fields are left untouched.
type UpdateDepartmentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// DepartmentResponse is the department wire shape.
type DepartmentResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NotificationResponse is the notification wire shape.
type NotificationResponse struct {
	ID          int64     `json:"id"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	RelatedID   int64     `json:"related_id"`
	RelatedType string    `json:"related_type"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// FromDepartment maps the domain model.
func FromDepartment(d *domain.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// FromNotification maps the domain model.
func FromNotification(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		Message:     n.Message,
		Type:        string(n.Type),
		RelatedID:   n.RelatedID,
		RelatedType: string(n.RelatedType),
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}
