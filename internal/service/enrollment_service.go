package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
)

type enrollmentRepository interface {
	Register(ctx context.Context, userID, courseID int64) (*models.Enrollment, error)
	CreateFeedback(ctx context.Context, feedback *models.Feedback) (*models.Feedback, error)
	ListByCourse(ctx context.Context, courseID int64) ([]models.Enrollment, error)
}

// FeedbackRequest describes the feedback payload. The subject is always the
// acting user, never a caller-supplied id.
type FeedbackRequest struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=500"`
}

// EnrollmentService orchestrates self-enrollment and feedback submission.
// Both operations are open to any authenticated caller; the actor identity
// from the token is the enrollment/feedback subject regardless of payload.
type EnrollmentService struct {
	repo      enrollmentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, validator: validate, logger: logger}
}

// Enroll registers the acting user on a course.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, courseID int64) (*models.Enrollment, error) {
	enrollment, err := s.repo.Register(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user enrolled", zap.Int64("user_id", actor.UserID), zap.Int64("course_id", courseID))
	return enrollment, nil
}

// Feedback records a course rating from the acting user. Feedback does not
// require an enrollment; only course existence is enforced downstream.
func (s *EnrollmentService) Feedback(ctx context.Context, actor models.Actor, courseID int64, req FeedbackRequest) (*models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rating must be between 1 and 5")
	}
	feedback := &models.Feedback{
		CourseID: courseID,
		UserID:   actor.UserID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	}
	created, err := s.repo.CreateFeedback(ctx, feedback)
	if err != nil {
		return nil, err
	}
	return created, nil
}
