package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Course represents a course row. The schedule document is opaque JSON;
// the service never inspects its contents.
type Course struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    *string         `db:"description" json:"description,omitempty"`
	BannerURL      *string         `db:"banner_url" json:"banner_url,omitempty"`
	Schedule       *types.JSONText `db:"schedule" json:"schedule,omitempty"`
	IsUniversity   bool            `db:"is_university" json:"is_university"`
	StartDate      time.Time       `db:"start_date" json:"start_date"`
	EndDate        time.Time       `db:"end_date" json:"end_date"`
	PointsPerVisit float64         `db:"points_per_visit" json:"points_per_visit"`
}

// CourseTeacher is the associative row between a course and a teacher.
// At most one row exists per (course, teacher) pair.
type CourseTeacher struct {
	CourseID  int64 `db:"course_id" json:"course_id"`
	TeacherID int64 `db:"teacher_id" json:"teacher_id"`
	IsMain    bool  `db:"is_main" json:"is_main"`
}

// CourseTeacherInfo enriches a teaching assignment with the teacher's identity.
type CourseTeacherInfo struct {
	TeacherID int64  `db:"teacher_id" json:"teacher_id"`
	Email     string `db:"email" json:"email"`
	IsMain    bool   `db:"is_main" json:"is_main"`
}

// CourseDetail carries a course with its associations materialized.
type CourseDetail struct {
	Course
	Teachers    []CourseTeacherInfo `json:"teachers"`
	Enrollments []Enrollment        `json:"enrollments,omitempty"`
	Feedback    []Feedback          `json:"feedback,omitempty"`
}

// CourseUpdate describes a partial course update. Nil fields stay untouched.
type CourseUpdate struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	IsUniversity   *bool           `json:"is_university,omitempty"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	PointsPerVisit *float64        `json:"points_per_visit,omitempty"`
	Schedule       *types.JSONText `json:"schedule,omitempty"`
}

// Empty reports whether the update carries no changes.
func (u CourseUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.IsUniversity == nil &&
		u.StartDate == nil && u.EndDate == nil && u.PointsPerVisit == nil && u.Schedule == nil
}
