package dto

import (
	"time"

	"github.com/opsdesk/helpdesk/internal/domain"
)

// RegisterRequest payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the issued token wire shape.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// CreateUserRequest is the admin user-provisioning payload.
type CreateUserRequest struct {
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	Role         domain.Role `json:"role"`
	DepartmentID *int64      `json:"department_id"`
}

// UpdateUserRequest payload; absent fields are left untouched.
type UpdateUserRequest struct {
	Username        *string      `json:"username"`
	Email           *string      `json:"email"`
	Role            *domain.Role `json:"role"`
	DepartmentID    *int64       `json:"department_id"`
	ClearDepartment bool         `json:"clear_department"`
}

// UserResponse is the user wire shape.
type UserResponse struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	DepartmentID *int64      `json:"department_id"`
	CreatedAt    time.Time   `json:"created_at"`
}

// FromUser maps the domain model.
func FromUser(u *domain.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		DepartmentID: u.DepartmentID,
		CreatedAt:    u.CreatedAt,
	}
}
