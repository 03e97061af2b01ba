package models

import "time"

// EnrollmentStatusRegistered is the default status assigned on registration.
const EnrollmentStatusRegistered = "registered"

// Enrollment links a user to a course. At most one row exists per
// (user, course) pair; the unique index makes the concurrent loser
// deterministic.
type Enrollment struct {
	ID       int64     `db:"id" json:"id"`
	UserID   int64     `db:"user_id" json:"user_id"`
	CourseID int64     `db:"course_id" json:"course_id"`
	Status   string    `db:"status" json:"status"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Attendance records a single lesson visit for an enrollment. It is owned by
// the enrollment and removed together with it.
type Attendance struct {
	ID           int64     `db:"id" json:"id"`
	EnrollmentID int64     `db:"enrollment_id" json:"enrollment_id"`
	LessonDate   time.Time `db:"lesson_date" json:"lesson_date"`
	Attended     bool      `db:"attended" json:"attended"`
}
