package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/require"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
)

type courseRepoMock struct {
	createFn            func(ctx context.Context, course *models.Course, teacherIDs []int64) (*models.CourseDetail, error)
	updateBannerFn      func(ctx context.Context, id int64, bannerURL string) (*models.Course, error)
	updateScheduleFn    func(ctx context.Context, id int64, schedule types.JSONText) (*models.Course, error)
	updateDatesFn       func(ctx context.Context, id int64, start, end *time.Time) (*models.Course, error)
	updateInfoFn        func(ctx context.Context, id int64, upd models.CourseUpdate) (*models.Course, error)
	deleteFn            func(ctx context.Context, id int64) (*models.CourseDetail, error)
	listAllFn           func(ctx context.Context) ([]models.CourseDetail, error)
	findByIDFn          func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error)
	addTeachersFn       func(ctx context.Context, courseID int64, teacherIDs []int64) error
	removeTeacherFn     func(ctx context.Context, courseID, teacherID int64) error
	listEnrolledUsersFn func(ctx context.Context, courseID int64) ([]models.User, error)

	createCalls      int
	deleteCalls      int
	listAllCalls     int
	addTeachersCalls int
}

func (m *courseRepoMock) Create(ctx context.Context, course *models.Course, teacherIDs []int64) (*models.CourseDetail, error) {
	m.createCalls++
	return m.createFn(ctx, course, teacherIDs)
}

func (m *courseRepoMock) UpdateBanner(ctx context.Context, id int64, bannerURL string) (*models.Course, error) {
	return m.updateBannerFn(ctx, id, bannerURL)
}

func (m *courseRepoMock) UpdateSchedule(ctx context.Context, id int64, schedule types.JSONText) (*models.Course, error) {
	return m.updateScheduleFn(ctx, id, schedule)
}

func (m *courseRepoMock) UpdateDates(ctx context.Context, id int64, start, end *time.Time) (*models.Course, error) {
	return m.updateDatesFn(ctx, id, start, end)
}

func (m *courseRepoMock) UpdateInfo(ctx context.Context, id int64, upd models.CourseUpdate) (*models.Course, error) {
	return m.updateInfoFn(ctx, id, upd)
}

func (m *courseRepoMock) Delete(ctx context.Context, id int64) (*models.CourseDetail, error) {
	m.deleteCalls++
	return m.deleteFn(ctx, id)
}

func (m *courseRepoMock) ListAll(ctx context.Context) ([]models.CourseDetail, error) {
	m.listAllCalls++
	return m.listAllFn(ctx)
}

func (m *courseRepoMock) FindByID(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
	return m.findByIDFn(ctx, id, includeTeachers)
}

func (m *courseRepoMock) AddTeachers(ctx context.Context, courseID int64, teacherIDs []int64) error {
	m.addTeachersCalls++
	return m.addTeachersFn(ctx, courseID, teacherIDs)
}

func (m *courseRepoMock) RemoveTeacher(ctx context.Context, courseID, teacherID int64) error {
	return m.removeTeacherFn(ctx, courseID, teacherID)
}

func (m *courseRepoMock) ListEnrolledUsers(ctx context.Context, courseID int64) ([]models.User, error) {
	return m.listEnrolledUsersFn(ctx, courseID)
}

type userDirectoryMock struct {
	findExistingIDsFn func(ctx context.Context, ids []int64) ([]int64, error)
}

func (m *userDirectoryMock) FindExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return m.findExistingIDsFn(ctx, ids)
}

type bannerStoreMock struct {
	saveFn    func(courseID int64, originalName string, data []byte) (string, error)
	saveCalls int
}

func (m *bannerStoreMock) Save(courseID int64, originalName string, data []byte) (string, error) {
	m.saveCalls++
	return m.saveFn(courseID, originalName, data)
}

type cacheRepoFake struct {
	entries map[string][]byte
	deleted []string
}

func newCacheRepoFake() *cacheRepoFake {
	return &cacheRepoFake{entries: make(map[string][]byte)}
}

func (f *cacheRepoFake) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *cacheRepoFake) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = raw
	return nil
}

func (f *cacheRepoFake) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		f.deleted = append(f.deleted, key)
		delete(f.entries, key)
	}
	return nil
}

func newCacheForTest(repo CacheRepository) *CacheService {
	return NewCacheService(repo, nil, time.Minute, nil, true)
}

var (
	adminActor   = models.Actor{UserID: 1, Role: models.RoleAdmin}
	teacherActor = models.Actor{UserID: 2, Role: models.RoleTeacher}
	studentActor = models.Actor{UserID: 3, Role: models.RoleStudent}
)

func validCreateRequest() CreateCourseRequest {
	return CreateCourseRequest{
		Name:           "Algorithms",
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PointsPerVisit: 1.5,
	}
}

func TestCourseServiceCreateRequiresAdmin(t *testing.T) {
	repo := &courseRepoMock{}
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	for _, actor := range []models.Actor{teacherActor, studentActor} {
		_, err := svc.Create(context.Background(), actor, validCreateRequest())
		require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	}
	require.Zero(t, repo.createCalls)
}

func TestCourseServiceCreateValidatesPayload(t *testing.T) {
	repo := &courseRepoMock{}
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	req := validCreateRequest()
	req.PointsPerVisit = 0
	_, err := svc.Create(context.Background(), adminActor, req)
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	require.Zero(t, repo.createCalls)
}

func TestCourseServiceCreateInvalidatesListCache(t *testing.T) {
	repo := &courseRepoMock{
		createFn: func(ctx context.Context, course *models.Course, teacherIDs []int64) (*models.CourseDetail, error) {
			course.ID = 1
			return &models.CourseDetail{Course: *course}, nil
		},
	}
	cacheRepo := newCacheRepoFake()
	cacheRepo.entries[courseListCacheKey] = []byte(`[]`)
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, newCacheForTest(cacheRepo), BannerPolicy{}, nil, nil)

	detail, err := svc.Create(context.Background(), adminActor, validCreateRequest())
	require.NoError(t, err)
	require.EqualValues(t, 1, detail.ID)
	require.Contains(t, cacheRepo.deleted, courseListCacheKey)
}

func TestCourseServiceDeleteRequiresAdmin(t *testing.T) {
	repo := &courseRepoMock{}
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.Delete(context.Background(), teacherActor, 1)
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	require.Zero(t, repo.deleteCalls)
}

func TestCourseServiceDeleteReturnsSnapshot(t *testing.T) {
	snapshot := &models.CourseDetail{
		Course:      models.Course{ID: 1, Name: "Algorithms"},
		Enrollments: []models.Enrollment{{ID: 11, UserID: 3, CourseID: 1}},
	}
	repo := &courseRepoMock{
		deleteFn: func(ctx context.Context, id int64) (*models.CourseDetail, error) {
			return snapshot, nil
		},
	}
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	got, err := svc.Delete(context.Background(), adminActor, 1)
	require.NoError(t, err)
	require.Equal(t, snapshot, got)
}

func TestCourseServiceUpdateDatesRequiresAtLeastOneDate(t *testing.T) {
	svc := NewCourseService(&courseRepoMock{}, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.UpdateDates(context.Background(), teacherActor, 1, UpdateCourseDatesRequest{})
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestCourseServiceUpdateInfoRejectsEmptyPayload(t *testing.T) {
	svc := NewCourseService(&courseRepoMock{}, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.UpdateInfo(context.Background(), teacherActor, 1, models.CourseUpdate{})
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestCourseServiceUpdateBannerRejectsNonImage(t *testing.T) {
	banners := &bannerStoreMock{}
	svc := NewCourseService(&courseRepoMock{}, &userDirectoryMock{}, banners, nil, BannerPolicy{}, nil, nil)

	upload := BannerUpload{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("x")}
	_, err := svc.UpdateBanner(context.Background(), teacherActor, 1, upload)
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	require.Zero(t, banners.saveCalls)
}

func TestCourseServiceUpdateBannerRejectsOversizedFile(t *testing.T) {
	banners := &bannerStoreMock{}
	policy := BannerPolicy{MaxFileSizeBytes: 4}
	svc := NewCourseService(&courseRepoMock{}, &userDirectoryMock{}, banners, nil, policy, nil, nil)

	upload := BannerUpload{Filename: "banner.png", ContentType: "image/png", Data: []byte("too big")}
	_, err := svc.UpdateBanner(context.Background(), adminActor, 1, upload)
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	require.Zero(t, banners.saveCalls)
}

func TestCourseServiceUpdateBannerStoresReference(t *testing.T) {
	repo := &courseRepoMock{
		findByIDFn: func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
			return &models.CourseDetail{Course: models.Course{ID: id}}, nil
		},
		updateBannerFn: func(ctx context.Context, id int64, bannerURL string) (*models.Course, error) {
			return &models.Course{ID: id, BannerURL: &bannerURL}, nil
		},
	}
	banners := &bannerStoreMock{
		saveFn: func(courseID int64, originalName string, data []byte) (string, error) {
			return "banners/course_1_banner.png", nil
		},
	}
	svc := NewCourseService(repo, &userDirectoryMock{}, banners, nil, BannerPolicy{}, nil, nil)

	upload := BannerUpload{Filename: "banner.png", ContentType: "image/png", Data: []byte("png-bytes")}
	course, err := svc.UpdateBanner(context.Background(), teacherActor, 1, upload)
	require.NoError(t, err)
	require.Equal(t, 1, banners.saveCalls)
	require.NotNil(t, course.BannerURL)
	require.Equal(t, "banners/course_1_banner.png", *course.BannerURL)
}

func TestCourseServiceAddTeachersRejectsUnknownIDs(t *testing.T) {
	repo := &courseRepoMock{
		findByIDFn: func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
			return &models.CourseDetail{Course: models.Course{ID: id}}, nil
		},
	}
	users := &userDirectoryMock{
		findExistingIDsFn: func(ctx context.Context, ids []int64) ([]int64, error) {
			return []int64{7}, nil
		},
	}
	svc := NewCourseService(repo, users, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.AddTeachers(context.Background(), adminActor, 1, AddTeachersRequest{TeacherIDs: []int64{7, 99}})
	require.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
	require.Zero(t, repo.addTeachersCalls)
}

func TestCourseServiceAddTeachersDedupesAndRefreshes(t *testing.T) {
	var assigned []int64
	repo := &courseRepoMock{
		findByIDFn: func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
			detail := &models.CourseDetail{Course: models.Course{ID: id}}
			if includeTeachers {
				detail.Teachers = []models.CourseTeacherInfo{
					{TeacherID: 7, Email: "seven@school.test"},
					{TeacherID: 8, Email: "eight@school.test"},
				}
			}
			return detail, nil
		},
		addTeachersFn: func(ctx context.Context, courseID int64, teacherIDs []int64) error {
			assigned = teacherIDs
			return nil
		},
	}
	users := &userDirectoryMock{
		findExistingIDsFn: func(ctx context.Context, ids []int64) ([]int64, error) {
			return ids, nil
		},
	}
	svc := NewCourseService(repo, users, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	detail, err := svc.AddTeachers(context.Background(), teacherActor, 1, AddTeachersRequest{TeacherIDs: []int64{7, 7, 8}})
	require.NoError(t, err)
	require.Equal(t, []int64{7, 8}, assigned)
	require.Len(t, detail.Teachers, 2)
}

func TestCourseServiceAddTeachersForbiddenForStudents(t *testing.T) {
	repo := &courseRepoMock{}
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.AddTeachers(context.Background(), studentActor, 1, AddTeachersRequest{TeacherIDs: []int64{7}})
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	require.Zero(t, repo.addTeachersCalls)
}

func TestCourseServiceListServesWarmCache(t *testing.T) {
	repo := &courseRepoMock{}
	cacheRepo := newCacheRepoFake()
	warm := []models.CourseDetail{{Course: models.Course{ID: 1, Name: "Algorithms"}}}
	raw, err := json.Marshal(warm)
	require.NoError(t, err)
	cacheRepo.entries[courseListCacheKey] = raw

	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, newCacheForTest(cacheRepo), BannerPolicy{}, nil, nil)

	courses, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Zero(t, repo.listAllCalls)
}

func TestCourseServiceListPopulatesColdCache(t *testing.T) {
	repo := &courseRepoMock{
		listAllFn: func(ctx context.Context) ([]models.CourseDetail, error) {
			return []models.CourseDetail{{Course: models.Course{ID: 1}}}, nil
		},
	}
	cacheRepo := newCacheRepoFake()
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, newCacheForTest(cacheRepo), BannerPolicy{}, nil, nil)

	courses, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, 1, repo.listAllCalls)
	require.Contains(t, cacheRepo.entries, courseListCacheKey)
}

func TestCourseServiceGetMapsMissingCourse(t *testing.T) {
	repo := &courseRepoMock{
		findByIDFn: func(ctx context.Context, id int64, includeTeachers bool) (*models.CourseDetail, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := NewCourseService(repo, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.Get(context.Background(), 404, false)
	require.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestCourseServiceListEnrolledUsersStaffOnly(t *testing.T) {
	svc := NewCourseService(&courseRepoMock{}, &userDirectoryMock{}, &bannerStoreMock{}, nil, BannerPolicy{}, nil, nil)

	_, err := svc.ListEnrolledUsers(context.Background(), studentActor, 1)
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}
