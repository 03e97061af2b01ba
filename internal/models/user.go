package models

import "time"

// UserRole represents the available roles for authorization checks.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// User represents an application user stored in the users table.
// Registration happens outside this service; users are consumed for
// authentication and existence validation only.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Actor identifies the authenticated caller of a service operation.
// It is derived from validated token claims, never from request payloads.
type Actor struct {
	UserID int64
	Role   UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsStaff reports whether the actor is a teacher or an admin.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleTeacher
}
