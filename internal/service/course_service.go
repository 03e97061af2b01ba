package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
)

const courseListCacheKey = "courses:list"

type courseRepository interface {
	Create(ctx context.Context, course *models.Course, teacherIDs []int64) (*models.CourseDetail, error)
	UpdateBanner(ctx context.Context, id int64, bannerURL string) (*models.Course, error)
	UpdateSchedule(ctx context.Context, id int64, schedule types.JSONText) (*models.Course, error)
	UpdateDates(ctx context.Context, id int64, start, end *time.Time) (*models.Course, error)
	UpdateInfo(ctx context.Context, id int64, upd models.CourseUpdate) (*models.Course, error)
	Delete(ctx context.Context, id int64) (*models.CourseDetail, error)
	ListAll(ctx context.Context) ([]models.CourseDetail, error)
	FindByID(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error)
	AddTeachers(ctx context.Context, courseID int64, teacherIDs []int64) error
	RemoveTeacher(ctx context.Context, courseID, teacherID int64) error
	ListEnrolledUsers(ctx context.Context, courseID int64) ([]models.User, error)
}

type userDirectory interface {
	FindExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
}

type bannerStore interface {
	Save(courseID int64, originalName string, data []byte) (string, error)
}

// CreateCourseRequest describes the course creation payload.
type CreateCourseRequest struct {
	Name           string          `json:"name" validate:"required,min=1,max=100"`
	Description    *string         `json:"description" validate:"omitempty,max=500"`
	Schedule       *types.JSONText `json:"schedule"`
	IsUniversity   bool            `json:"is_university"`
	StartDate      time.Time       `json:"start_date" validate:"required"`
	EndDate        time.Time       `json:"end_date" validate:"required"`
	PointsPerVisit float64         `json:"points_per_visit" validate:"required,gt=0"`
	TeacherIDs     []int64         `json:"teacher_ids"`
}

// UpdateCourseDatesRequest carries an optional pair of new dates.
type UpdateCourseDatesRequest struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// UpdateScheduleRequest wraps the opaque schedule document.
type UpdateScheduleRequest struct {
	Schedule types.JSONText `json:"schedule" validate:"required"`
}

// AddTeachersRequest lists teacher ids to attach to a course.
type AddTeachersRequest struct {
	TeacherIDs []int64 `json:"teacher_ids" validate:"required,min=1"`
}

// BannerUpload carries the uploaded banner content.
type BannerUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BannerPolicy restricts accepted banner uploads.
type BannerPolicy struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// CourseService wraps the course repository with role checks and multi-step
// orchestration. The role guard sits at the top of every mutating method; a
// rejected actor never reaches the repository.
type CourseService struct {
	repo      courseRepository
	users     userDirectory
	banners   bannerStore
	cache     *CacheService
	policy    BannerPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, users userDirectory, banners bannerStore, cache *CacheService, policy BannerPolicy, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, banners: banners, cache: cache, policy: policy, validator: validate, logger: logger}
}

func requireRole(actor models.Actor, allowed ...models.UserRole) error {
	for _, role := range allowed {
		if actor.Role == role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "insufficient role for this operation")
}

// Create persists a new course with its initial teacher set. Admin only.
func (s *CourseService) Create(ctx context.Context, actor models.Actor, req CreateCourseRequest) (*models.CourseDetail, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Name:           req.Name,
		Description:    req.Description,
		Schedule:       req.Schedule,
		IsUniversity:   req.IsUniversity,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		PointsPerVisit: req.PointsPerVisit,
	}
	detail, err := s.repo.Create(ctx, course, req.TeacherIDs)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, courseListCacheKey)
	s.logger.Info("course created", zap.Int64("course_id", detail.ID), zap.Int64("actor_id", actor.UserID))
	return detail, nil
}

// Delete removes a course and everything attached to it. Admin only.
// The returned snapshot reflects the state before deletion.
func (s *CourseService) Delete(ctx context.Context, actor models.Actor, courseID int64) (*models.CourseDetail, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	snapshot, err := s.repo.Delete(ctx, courseID)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, courseListCacheKey)
	s.logger.Info("course deleted", zap.Int64("course_id", courseID), zap.Int64("actor_id", actor.UserID))
	return snapshot, nil
}

// UpdateBanner validates the upload, stores the bytes through the banner
// store and persists only the returned reference. Teacher or admin.
func (s *CourseService) UpdateBanner(ctx context.Context, actor models.Actor, courseID int64, upload BannerUpload) (*models.Course, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	if s.policy.MaxFileSizeBytes > 0 && int64(len(upload.Data)) > s.policy.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "banner file too large")
	}
	if !s.allowedBannerMIME(upload.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "banner must be an image")
	}

	if _, err := s.repo.FindByID(ctx, courseID, false); err != nil {
		return nil, mapNoRows(err, "course not found")
	}

	reference, err := s.banners.Save(courseID, upload.Filename, upload.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store banner")
	}

	course, err := s.repo.UpdateBanner(ctx, courseID, reference)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, courseListCacheKey)
	return course, nil
}

// UpdateSchedule replaces the schedule document wholesale. Teacher or admin.
func (s *CourseService) UpdateSchedule(ctx context.Context, actor models.Actor, courseID int64, req UpdateScheduleRequest) (*models.Course, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	course, err := s.repo.UpdateSchedule(ctx, courseID, req.Schedule)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, courseListCacheKey)
	return course, nil
}

// UpdateDates applies the provided start and/or end date. Teacher or admin.
func (s *CourseService) UpdateDates(ctx context.Context, actor models.Actor, courseID int64, req UpdateCourseDatesRequest) (*models.Course, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	if req.StartDate == nil && req.EndDate == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one of start_date or end_date is required")
	}
	course, err := s.repo.UpdateDates(ctx, courseID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, courseListCacheKey)
	return course, nil
}

// UpdateInfo applies a partial update to course fields. Teacher or admin.
func (s *CourseService) UpdateInfo(ctx context.Context, actor models.Actor, courseID int64, upd models.CourseUpdate) (*models.Course, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "update payload carries no fields")
	}
	course, err := s.repo.UpdateInfo(ctx, courseID, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, courseListCacheKey)
	return course, nil
}

// AddTeachers validates the course and every supplied teacher id, performs
// the idempotent association insert and returns the refreshed teacher set.
// Teacher or admin.
func (s *CourseService) AddTeachers(ctx context.Context, actor models.Actor, courseID int64, req AddTeachersRequest) (*models.CourseDetail, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	if _, err := s.repo.FindByID(ctx, courseID, false); err != nil {
		return nil, mapNoRows(err, "course not found")
	}

	wanted := dedupe(req.TeacherIDs)
	existing, err := s.users.FindExistingIDs(ctx, wanted)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate teacher ids")
	}
	if len(existing) != len(wanted) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more teachers do not exist")
	}

	if err := s.repo.AddTeachers(ctx, courseID, wanted); err != nil {
		return nil, err
	}

	detail, err := s.repo.FindByID(ctx, courseID, true)
	if err != nil {
		return nil, mapNoRows(err, "course not found")
	}
	s.cache.Invalidate(ctx, courseListCacheKey)
	return detail, nil
}

// RemoveTeacher detaches one teacher from a course. Teacher or admin.
func (s *CourseService) RemoveTeacher(ctx context.Context, actor models.Actor, courseID, teacherID int64) error {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return err
	}
	if err := s.repo.RemoveTeacher(ctx, courseID, teacherID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, courseListCacheKey)
	return nil
}

// List returns every course with associations, served from cache when warm.
// Open to any authenticated caller.
func (s *CourseService) List(ctx context.Context) ([]models.CourseDetail, error) {
	var cached []models.CourseDetail
	if hit, _ := s.cache.Get(ctx, courseListCacheKey, &cached); hit {
		return cached, nil
	}

	courses, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	s.cache.Set(ctx, courseListCacheKey, courses)
	return courses, nil
}

// Get returns one course. Open to any authenticated caller.
func (s *CourseService) Get(ctx context.Context, courseID int64, includeTeachers bool) (*models.CourseDetail, error) {
	detail, err := s.repo.FindByID(ctx, courseID, includeTeachers)
	if err != nil {
		return nil, mapNoRows(err, "course not found")
	}
	return detail, nil
}

// ListEnrolledUsers returns the users enrolled on a course. Teacher or admin.
func (s *CourseService) ListEnrolledUsers(ctx context.Context, actor models.Actor, courseID int64) ([]models.User, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, courseID, false); err != nil {
		return nil, mapNoRows(err, "course not found")
	}
	return s.repo.ListEnrolledUsers(ctx, courseID)
}

func (s *CourseService) allowedBannerMIME(contentType string) bool {
	if len(s.policy.AllowedMIMEs) == 0 {
		return strings.HasPrefix(contentType, "image/")
	}
	for _, allowed := range s.policy.AllowedMIMEs {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}

func mapNoRows(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return appErrors.FromError(err)
}

func dedupe(ids []int64) []int64 {
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
