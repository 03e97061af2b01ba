package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/unipoints/course-api/internal/models"
	"github.com/unipoints/course-api/internal/service"
	"github.com/unipoints/course-api/pkg/jobs"
)

const testSecret = "middleware-test-secret"

type noopAuthRepo struct{}

func (noopAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

func (noopAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func signedToken(t *testing.T, userID int64, role models.UserRole, secret string) string {
	t.Helper()
	claims := models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func newProtectedRouter(t *testing.T, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	authService := service.NewAuthService(noopAuthRepo{}, nil, nil, service.AuthConfig{
		Secret:     testSecret,
		Expiration: time.Hour,
	})

	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(authService)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": actor.Role})
	})
	r.GET("/protected/:id", handlers...)
	return r
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newProtectedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected/1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r := newProtectedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected/1", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	r := newProtectedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected/1", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, 1, models.RoleAdmin, "other-secret"))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTStoresActorForHandlers(t *testing.T) {
	r := newProtectedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected/1", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, 42, models.RoleTeacher, testSecret))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"user_id":42`)
}

func TestRequireRolesForbidsOutsiders(t *testing.T) {
	r := newProtectedRouter(t, RequireRoles(models.RoleAdmin))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected/1", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, 3, models.RoleStudent, testSecret))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesAllowsAnyListedRole(t *testing.T) {
	r := newProtectedRouter(t, RequireRoles(models.RoleAdmin, models.RoleTeacher))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected/1", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, 2, models.RoleTeacher, testSecret))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuditEnqueuesEntryForSuccessfulRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var mu sync.Mutex
	var entries []*models.AuditLog
	done := make(chan struct{}, 1)
	queue := jobs.NewQueue("audit-test", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		require.True(t, ok)
		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, jobs.QueueConfig{Workers: 1})
	queue.Start(context.Background())
	defer queue.Stop()

	r := gin.New()
	r.POST("/courses/:id/enroll", Audit(queue, models.AuditActionEnroll, "enrollment"), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/courses/5/enroll", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was never processed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, entries, 1)
	require.Equal(t, models.AuditActionEnroll, entries[0].Action)
	require.Equal(t, "enrollment", entries[0].Resource)
	require.NotNil(t, entries[0].ResourceID)
	require.EqualValues(t, 5, *entries[0].ResourceID)
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handled := make(chan struct{}, 1)
	queue := jobs.NewQueue("audit-test", func(ctx context.Context, job jobs.Job) error {
		handled <- struct{}{}
		return nil
	}, jobs.QueueConfig{Workers: 1})
	queue.Start(context.Background())
	defer queue.Stop()

	r := gin.New()
	r.POST("/courses/:id/enroll", Audit(queue, models.AuditActionEnroll, "enrollment"), func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"ok": false})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/courses/5/enroll", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)

	select {
	case <-handled:
		t.Fatal("failed request should not be audited")
	case <-time.After(100 * time.Millisecond):
	}
}
