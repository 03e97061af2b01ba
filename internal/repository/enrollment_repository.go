package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
)

// EnrollmentRepository handles persistence of enrollments and feedback.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Register creates an enrollment for a user on a course. The checks run in
// order (course exists, user exists, no duplicate) inside one transaction;
// the unique index on (user_id, course_id) turns a concurrent duplicate into
// a deterministic conflict for the loser.
func (r *EnrollmentRepository) Register(ctx context.Context, userID, courseID int64) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM courses WHERE id = $1`, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, fmt.Errorf("check course for enrollment: %w", err)
	}
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM users WHERE id = $1`, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, fmt.Errorf("check user for enrollment: %w", err)
	}

	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 LIMIT 1`, userID, courseID)
	if err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user is already enrolled in this course")
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing enrollment: %w", err)
	}

	var enrollment models.Enrollment
	const insertQuery = `INSERT INTO enrollments (user_id, course_id, status, joined_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, user_id, course_id, status, joined_at`
	if err := tx.GetContext(ctx, &enrollment, insertQuery, userID, courseID, models.EnrollmentStatusRegistered, time.Now().UTC()); err != nil {
		return nil, translatePQ(err, "create enrollment")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}
	return &enrollment, nil
}

// CreateFeedback records feedback tied to an existing course. Rating range
// is the caller's responsibility; course existence is enforced here.
func (r *EnrollmentRepository) CreateFeedback(ctx context.Context, feedback *models.Feedback) (*models.Feedback, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM courses WHERE id = $1`, feedback.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, fmt.Errorf("check course for feedback: %w", err)
	}

	var created models.Feedback
	const insertQuery = `INSERT INTO feedback (course_id, user_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, course_id, user_id, rating, comment, created_at`
	if err := tx.GetContext(ctx, &created, insertQuery, feedback.CourseID, feedback.UserID, feedback.Rating, feedback.Comment, time.Now().UTC()); err != nil {
		return nil, translatePQ(err, "create feedback")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit feedback: %w", err)
	}
	return &created, nil
}

// ListByCourse returns every enrollment on a course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID int64) ([]models.Enrollment, error) {
	const query = `SELECT id, user_id, course_id, status, joined_at FROM enrollments WHERE course_id = $1 ORDER BY id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}
