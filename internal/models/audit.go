package models

import "time"

// Audit actions recorded by the service.
const (
	AuditActionLogin        = "login"
	AuditActionCourseWrite  = "course_write"
	AuditActionCourseDelete = "course_delete"
	AuditActionEnroll       = "enroll"
	AuditActionFeedback     = "feedback"
)

// AuditLog captures who did what against which resource.
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *int64    `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
