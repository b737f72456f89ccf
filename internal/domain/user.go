package domain

import "time"

// Role enumerates the three access levels in the system.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleClient Role = "client"
)

// ValidRole reports whether the value is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleClient:
		return true
	}
	return false
}

// User models anyone who can act in the system: administrators,
// support agents, and clients who file tickets.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	DepartmentID *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated identity attached to every mutation.
// Username and role are snapshotted so audit rows survive user deletion.
type Actor struct {
	ID       int64
	Username string
	Role     Role
}

// ActorFromUser builds the acting identity for a user.
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}
