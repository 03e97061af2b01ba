package service

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
)

func newExportServiceForTest() (*ExportService, *courseRepoMock, *enrollmentRepoMock) {
	courses := &courseRepoMock{
		findByIDFn: func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
			return &models.CourseDetail{Course: models.Course{ID: id, Name: "Algorithms"}}, nil
		},
		listEnrolledUsersFn: func(ctx context.Context, courseID int64) ([]models.User, error) {
			return []models.User{
				{ID: 3, Email: "student@school.test", Role: models.RoleStudent},
			}, nil
		},
	}
	enrollments := &enrollmentRepoMock{
		listByCourseFn: func(ctx context.Context, courseID int64) ([]models.Enrollment, error) {
			return []models.Enrollment{
				{ID: 11, UserID: 3, CourseID: courseID, Status: models.EnrollmentStatusRegistered, JoinedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
	}
	return NewExportService(courses, enrollments, nil), courses, enrollments
}

func TestExportServiceRosterCSV(t *testing.T) {
	svc, _, _ := newExportServiceForTest()

	roster, err := svc.Roster(context.Background(), teacherActor, 1, "csv")
	require.NoError(t, err)
	require.Equal(t, "course_1_roster.csv", roster.Filename)
	require.Equal(t, "text/csv", roster.ContentType)

	body := string(roster.Content)
	require.True(t, strings.HasPrefix(body, "ID,Email,Role,Status,Joined"))
	require.Contains(t, body, "student@school.test")
	require.Contains(t, body, models.EnrollmentStatusRegistered)
	require.Contains(t, body, "2025-02-01")
}

func TestExportServiceRosterDefaultsToCSV(t *testing.T) {
	svc, _, _ := newExportServiceForTest()

	roster, err := svc.Roster(context.Background(), adminActor, 1, "")
	require.NoError(t, err)
	require.Equal(t, "text/csv", roster.ContentType)
}

func TestExportServiceRosterPDF(t *testing.T) {
	svc, _, _ := newExportServiceForTest()

	roster, err := svc.Roster(context.Background(), adminActor, 1, "pdf")
	require.NoError(t, err)
	require.Equal(t, "course_1_roster.pdf", roster.Filename)
	require.Equal(t, "application/pdf", roster.ContentType)
	require.True(t, bytes.HasPrefix(roster.Content, []byte("%PDF")))
}

func TestExportServiceRosterRejectsUnknownFormat(t *testing.T) {
	svc, _, _ := newExportServiceForTest()

	_, err := svc.Roster(context.Background(), adminActor, 1, "xlsx")
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestExportServiceRosterStaffOnly(t *testing.T) {
	svc, _, _ := newExportServiceForTest()

	_, err := svc.Roster(context.Background(), studentActor, 1, "csv")
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestExportServiceRosterCourseNotFound(t *testing.T) {
	svc, courses, _ := newExportServiceForTest()
	courses.findByIDFn = func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
		return nil, sql.ErrNoRows
	}

	_, err := svc.Roster(context.Background(), teacherActor, 404, "csv")
	require.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
