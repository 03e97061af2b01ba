package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unipoints/course-api/internal/service"
	appErrors "github.com/unipoints/course-api/pkg/errors"
	"github.com/unipoints/course-api/pkg/response"
)

// EnrollmentHandler exposes self-enrollment and feedback endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll the authenticated user on a course
// @Tags Enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Feedback godoc
// @Summary Leave feedback on a course as the authenticated user
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body service.FeedbackRequest true "Feedback payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/feedback [post]
func (h *EnrollmentHandler) Feedback(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	feedback, err := h.enrollments.Feedback(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, feedback)
}
