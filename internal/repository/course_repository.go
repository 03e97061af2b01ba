package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
)

const courseColumns = `id, name, description, banner_url, schedule, is_university, start_date, end_date, points_per_visit`

// CourseRepository handles persistence of courses and their teacher
// assignments. Every mutating operation runs inside a single transaction so
// precondition reads and the subsequent write are atomic.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// translatePQ converts store-level integrity failures into domain errors so
// callers never see raw driver errors.
func translatePQ(err error, message string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
		case "23503", "23502", "23514": // fk, not-null, check violations
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
		}
	}
	return fmt.Errorf("%s: %w", message, err)
}

func validateCourseFields(c *models.Course) error {
	if len(c.Name) == 0 || len(c.Name) > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "course name must be between 1 and 100 characters")
	}
	if c.Description != nil && len(*c.Description) > 500 {
		return appErrors.Clone(appErrors.ErrValidation, "course description must not exceed 500 characters")
	}
	if c.PointsPerVisit <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "points per visit must be positive")
	}
	if !c.StartDate.Before(c.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "course start date must precede end date")
	}
	return nil
}

// Create persists a course together with its initial teacher assignments.
// All teacher ids are validated before any write happens; on any failure
// nothing is persisted.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course, teacherIDs []int64) (*models.CourseDetail, error) {
	if err := validateCourseFields(course); err != nil {
		return nil, err
	}

	var detail *models.CourseDetail
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if len(teacherIDs) > 0 {
			var count int
			const existQuery = `SELECT COUNT(DISTINCT id) FROM users WHERE id = ANY($1)`
			if err := tx.GetContext(ctx, &count, existQuery, pq.Array(teacherIDs)); err != nil {
				return fmt.Errorf("validate teacher ids: %w", err)
			}
			if count != len(dedupeIDs(teacherIDs)) {
				return appErrors.Clone(appErrors.ErrValidation, "one or more teacher ids do not exist")
			}
		}

		const insertQuery = `INSERT INTO courses (name, description, banner_url, schedule, is_university, start_date, end_date, points_per_visit)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + courseColumns
		var created models.Course
		if err := tx.GetContext(ctx, &created, insertQuery,
			course.Name, course.Description, course.BannerURL, course.Schedule,
			course.IsUniversity, course.StartDate, course.EndDate, course.PointsPerVisit,
		); err != nil {
			return translatePQ(err, "create course")
		}

		if len(teacherIDs) > 0 {
			const assignQuery = `INSERT INTO course_teachers (course_id, teacher_id)
            SELECT $1, unnest($2::bigint[])
            ON CONFLICT (course_id, teacher_id) DO NOTHING`
			if _, err := tx.ExecContext(ctx, assignQuery, created.ID, pq.Array(dedupeIDs(teacherIDs))); err != nil {
				return translatePQ(err, "assign course teachers")
			}
		}

		teachers, err := loadTeachers(ctx, tx, created.ID)
		if err != nil {
			return err
		}
		detail = &models.CourseDetail{Course: created, Teachers: teachers}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateBanner replaces the banner reference for a course.
func (r *CourseRepository) UpdateBanner(ctx context.Context, id int64, bannerURL string) (*models.Course, error) {
	const query = `UPDATE courses SET banner_url = $2 WHERE id = $1 RETURNING ` + courseColumns
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id, bannerURL); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, fmt.Errorf("update course banner: %w", err)
	}
	return &course, nil
}

// UpdateSchedule replaces the schedule document wholesale.
func (r *CourseRepository) UpdateSchedule(ctx context.Context, id int64, schedule types.JSONText) (*models.Course, error) {
	const query = `UPDATE courses SET schedule = $2 WHERE id = $1 RETURNING ` + courseColumns
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id, schedule); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, fmt.Errorf("update course schedule: %w", err)
	}
	return &course, nil
}

// UpdateDates sets whichever of start/end is provided. The merged pair must
// still satisfy start < end; otherwise nothing is written.
func (r *CourseRepository) UpdateDates(ctx context.Context, id int64, start, end *time.Time) (*models.Course, error) {
	var updated models.Course
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.Course
		const lockQuery = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &current, lockQuery, id); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return fmt.Errorf("load course for date update: %w", err)
		}

		if start != nil {
			current.StartDate = *start
		}
		if end != nil {
			current.EndDate = *end
		}
		if !current.StartDate.Before(current.EndDate) {
			return appErrors.Clone(appErrors.ErrValidation, "course start date must precede end date")
		}

		const query = `UPDATE courses SET start_date = $2, end_date = $3 WHERE id = $1 RETURNING ` + courseColumns
		if err := tx.GetContext(ctx, &updated, query, id, current.StartDate, current.EndDate); err != nil {
			return translatePQ(err, "update course dates")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateInfo applies only the non-nil fields of the partial update.
func (r *CourseRepository) UpdateInfo(ctx context.Context, id int64, upd models.CourseUpdate) (*models.Course, error) {
	var updated models.Course
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.Course
		const lockQuery = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &current, lockQuery, id); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return fmt.Errorf("load course for update: %w", err)
		}

		if upd.Name != nil {
			current.Name = *upd.Name
		}
		if upd.Description != nil {
			current.Description = upd.Description
		}
		if upd.IsUniversity != nil {
			current.IsUniversity = *upd.IsUniversity
		}
		if upd.StartDate != nil {
			current.StartDate = *upd.StartDate
		}
		if upd.EndDate != nil {
			current.EndDate = *upd.EndDate
		}
		if upd.PointsPerVisit != nil {
			current.PointsPerVisit = *upd.PointsPerVisit
		}
		if upd.Schedule != nil {
			current.Schedule = upd.Schedule
		}
		if err := validateCourseFields(&current); err != nil {
			return err
		}

		const query = `UPDATE courses
        SET name = $2, description = $3, schedule = $4, is_university = $5, start_date = $6, end_date = $7, points_per_visit = $8
        WHERE id = $1 RETURNING ` + courseColumns
		if err := tx.GetContext(ctx, &updated, query, id,
			current.Name, current.Description, current.Schedule, current.IsUniversity,
			current.StartDate, current.EndDate, current.PointsPerVisit,
		); err != nil {
			return translatePQ(err, "update course info")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a course together with its enrollments (including their
// attendance), feedback and teacher assignments, and returns a detached
// snapshot of the pre-deletion state.
func (r *CourseRepository) Delete(ctx context.Context, id int64) (*models.CourseDetail, error) {
	var snapshot *models.CourseDetail
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var course models.Course
		const lockQuery = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &course, lockQuery, id); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return fmt.Errorf("load course for deletion: %w", err)
		}

		teachers, err := loadTeachers(ctx, tx, id)
		if err != nil {
			return err
		}
		var enrollments []models.Enrollment
		const enrollQuery = `SELECT id, user_id, course_id, status, joined_at FROM enrollments WHERE course_id = $1`
		if err := tx.SelectContext(ctx, &enrollments, enrollQuery, id); err != nil {
			return fmt.Errorf("load enrollments for deletion: %w", err)
		}
		var feedback []models.Feedback
		const feedbackQuery = `SELECT id, course_id, user_id, rating, comment, created_at FROM feedback WHERE course_id = $1`
		if err := tx.SelectContext(ctx, &feedback, feedbackQuery, id); err != nil {
			return fmt.Errorf("load feedback for deletion: %w", err)
		}

		steps := []string{
			`DELETE FROM attendance WHERE enrollment_id IN (SELECT id FROM enrollments WHERE course_id = $1)`,
			`DELETE FROM enrollments WHERE course_id = $1`,
			`DELETE FROM feedback WHERE course_id = $1`,
			`DELETE FROM course_teachers WHERE course_id = $1`,
			`DELETE FROM courses WHERE id = $1`,
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step, id); err != nil {
				return translatePQ(err, "delete course")
			}
		}

		snapshot = &models.CourseDetail{Course: course, Teachers: teachers, Enrollments: enrollments, Feedback: feedback}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ListAll returns every course with teachers, enrollments and feedback
// materialized in batched queries rather than per-course round trips.
func (r *CourseRepository) ListAll(ctx context.Context) ([]models.CourseDetail, error) {
	var courses []models.Course
	const query = `SELECT ` + courseColumns + ` FROM courses ORDER BY id`
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if len(courses) == 0 {
		return []models.CourseDetail{}, nil
	}

	details := make([]models.CourseDetail, len(courses))
	index := make(map[int64]*models.CourseDetail, len(courses))
	ids := make([]int64, len(courses))
	for i, c := range courses {
		details[i] = models.CourseDetail{Course: c, Teachers: []models.CourseTeacherInfo{}}
		index[c.ID] = &details[i]
		ids[i] = c.ID
	}

	type teacherRow struct {
		CourseID int64 `db:"course_id"`
		models.CourseTeacherInfo
	}
	var teacherRows []teacherRow
	const teachersQuery = `SELECT ct.course_id, ct.teacher_id, ct.is_main, u.email
        FROM course_teachers ct
        JOIN users u ON u.id = ct.teacher_id
        WHERE ct.course_id = ANY($1)
        ORDER BY ct.course_id, ct.teacher_id`
	if err := r.db.SelectContext(ctx, &teacherRows, teachersQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list course teachers: %w", err)
	}
	for _, row := range teacherRows {
		if d, ok := index[row.CourseID]; ok {
			d.Teachers = append(d.Teachers, row.CourseTeacherInfo)
		}
	}

	var enrollments []models.Enrollment
	const enrollQuery = `SELECT id, user_id, course_id, status, joined_at FROM enrollments WHERE course_id = ANY($1) ORDER BY id`
	if err := r.db.SelectContext(ctx, &enrollments, enrollQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	for _, e := range enrollments {
		if d, ok := index[e.CourseID]; ok {
			d.Enrollments = append(d.Enrollments, e)
		}
	}

	var feedback []models.Feedback
	const feedbackQuery = `SELECT id, course_id, user_id, rating, comment, created_at FROM feedback WHERE course_id = ANY($1) ORDER BY id`
	if err := r.db.SelectContext(ctx, &feedback, feedbackQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list course feedback: %w", err)
	}
	for _, f := range feedback {
		if d, ok := index[f.CourseID]; ok {
			d.Feedback = append(d.Feedback, f)
		}
	}

	return details, nil
}

// FindByID returns a course; the teacher set is loaded only when requested.
// Absence is signalled with sql.ErrNoRows.
func (r *CourseRepository) FindByID(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
	var course models.Course
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	detail := &models.CourseDetail{Course: course}
	if includeTeachers {
		teachers, err := loadTeachers(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		detail.Teachers = teachers
	}
	return detail, nil
}

// AddTeachers inserts teaching assignments as an idempotent union: ids
// already assigned are skipped, new ids are inserted in one batch.
func (r *CourseRepository) AddTeachers(ctx context.Context, courseID int64, teacherIDs []int64) error {
	if len(teacherIDs) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM courses WHERE id = $1`, courseID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return fmt.Errorf("check course for teacher assignment: %w", err)
		}

		const query = `INSERT INTO course_teachers (course_id, teacher_id)
        SELECT $1, unnest($2::bigint[])
        ON CONFLICT (course_id, teacher_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, courseID, pq.Array(dedupeIDs(teacherIDs))); err != nil {
			return translatePQ(err, "assign course teachers")
		}
		return nil
	})
}

// RemoveTeacher deletes exactly one teaching assignment row.
func (r *CourseRepository) RemoveTeacher(ctx context.Context, courseID, teacherID int64) error {
	const query = `DELETE FROM course_teachers WHERE course_id = $1 AND teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, courseID, teacherID)
	if err != nil {
		return fmt.Errorf("remove course teacher: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove course teacher: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher is not assigned to this course")
	}
	return nil
}

// ListEnrolledUsers returns the users holding an enrollment on the course.
func (r *CourseRepository) ListEnrolledUsers(ctx context.Context, courseID int64) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.password_hash, u.role, u.created_at
        FROM users u
        JOIN enrollments e ON e.user_id = u.id
        WHERE e.course_id = $1
        ORDER BY u.id`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled users: %w", err)
	}
	return users, nil
}

// queryer lets the teacher loader run against both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func loadTeachers(ctx context.Context, q queryer, courseID int64) ([]models.CourseTeacherInfo, error) {
	const query = `SELECT ct.teacher_id, ct.is_main, u.email
        FROM course_teachers ct
        JOIN users u ON u.id = ct.teacher_id
        WHERE ct.course_id = $1
        ORDER BY ct.teacher_id`
	teachers := []models.CourseTeacherInfo{}
	if err := q.SelectContext(ctx, &teachers, query, courseID); err != nil {
		return nil, fmt.Errorf("load course teachers: %w", err)
	}
	return teachers, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
