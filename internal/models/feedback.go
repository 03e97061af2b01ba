package models

import "time"

// Feedback stores a course rating left by a user. A user may leave several
// feedback entries for the same course; no enrollment is required.
type Feedback struct {
	ID        int64     `db:"id" json:"id"`
	CourseID  int64     `db:"course_id" json:"course_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
