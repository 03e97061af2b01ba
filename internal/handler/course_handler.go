package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unipoints/course-api/internal/middleware"
	"github.com/unipoints/course-api/internal/models"
	"github.com/unipoints/course-api/internal/service"
	appErrors "github.com/unipoints/course-api/pkg/errors"
	"github.com/unipoints/course-api/pkg/response"
)

// CourseHandler exposes course management endpoints.
type CourseHandler struct {
	courses *service.CourseService
	exports *service.ExportService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService, exports *service.ExportService) *CourseHandler {
	return &CourseHandler{courses: courses, exports: exports}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid id"))
		return 0, false
	}
	return id, true
}

func actorOrAbort(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

// List godoc
// @Summary List all courses with teachers, enrollments and feedback
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courses.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses)
}

// Get godoc
// @Summary Get one course
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Param teachers query bool false "Include the teacher set"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	includeTeachers := c.DefaultQuery("teachers", "false") == "true"
	course, err := h.courses.Get(c.Request.Context(), id, includeTeachers)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// Create godoc
// @Summary Create a course with optional initial teachers
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateInfo godoc
// @Summary Partially update course fields
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.CourseUpdate true "Fields to update"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) UpdateInfo(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var upd models.CourseUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.UpdateInfo(c.Request.Context(), actor, id, upd)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// UpdateDates godoc
// @Summary Update course start/end dates
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body service.UpdateCourseDatesRequest true "Dates"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/dates [put]
func (h *CourseHandler) UpdateDates(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateCourseDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.UpdateDates(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// UpdateSchedule godoc
// @Summary Replace the course schedule document
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body service.UpdateScheduleRequest true "Schedule"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/schedule [put]
func (h *CourseHandler) UpdateSchedule(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.UpdateSchedule(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// UpdateBanner godoc
// @Summary Upload a new course banner image
// @Tags Courses
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Course ID"
// @Param file formData file true "Banner image"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/banner [put]
func (h *CourseHandler) UpdateBanner(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "banner file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read banner file"))
		return
	}
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read banner file"))
		return
	}

	upload := service.BannerUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}
	course, err := h.courses.UpdateBanner(c.Request.Context(), actor, id, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// Delete godoc
// @Summary Delete a course and everything attached to it
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	snapshot, err := h.courses.Delete(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}

// AddTeachers godoc
// @Summary Attach teachers to a course (idempotent)
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body service.AddTeachersRequest true "Teacher ids"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/teachers [post]
func (h *CourseHandler) AddTeachers(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.AddTeachersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.AddTeachers(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// RemoveTeacher godoc
// @Summary Detach one teacher from a course
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Param teacherId path int true "Teacher ID"
// @Success 204 "No Content"
// @Router /courses/{id}/teachers/{teacherId} [delete]
func (h *CourseHandler) RemoveTeacher(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	teacherID, ok := pathID(c, "teacherId")
	if !ok {
		return
	}
	if err := h.courses.RemoveTeacher(c.Request.Context(), actor, id, teacherID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListEnrolled godoc
// @Summary List users enrolled on a course
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments [get]
func (h *CourseHandler) ListEnrolled(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	users, err := h.courses.ListEnrolledUsers(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users)
}

// ExportRoster godoc
// @Summary Download the course roster as CSV or PDF
// @Tags Courses
// @Produce octet-stream
// @Param id path int true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /courses/{id}/roster/export [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	roster, err := h.exports.Roster(c.Request.Context(), actor, id, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+roster.Filename)
	c.Data(http.StatusOK, roster.ContentType, roster.Content)
}
