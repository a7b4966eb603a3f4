package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lan-attendance-api/internal/models"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func lecturerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: models.LecturerSubject, Role: models.RoleLecturer}
}

func perform(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTAndRoleGuard(t *testing.T) {
	r := gin.New()
	r.GET("/admin", JWT(stubValidator{claims: lecturerClaims()}), RequireLecturer(), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	r.GET("/student-role", JWT(stubValidator{claims: &models.JWTClaims{Role: "STUDENT"}}), RequireLecturer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := perform(r, http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = perform(r, http.MethodGet, "/admin", "Token good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = perform(r, http.MethodGet, "/admin", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = perform(r, http.MethodGet, "/admin", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.LecturerSubject, rec.Body.String())

	rec = perform(r, http.MethodGet, "/student-role", "Bearer good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOptionalJWT(t *testing.T) {
	r := gin.New()
	r.GET("/maybe", OptionalJWT(stubValidator{claims: lecturerClaims()}), func(c *gin.Context) {
		if Claims(c) == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, "lecturer")
	})

	assert.Equal(t, "anonymous", perform(r, http.MethodGet, "/maybe", "").Body.String())
	assert.Equal(t, "anonymous", perform(r, http.MethodGet, "/maybe", "Bearer bad").Body.String())
	assert.Equal(t, "lecturer", perform(r, http.MethodGet, "/maybe", "Bearer good").Body.String())
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &recordingAudit{}
	r := gin.New()
	r.POST("/students/:id/deactivate", JWT(stubValidator{claims: lecturerClaims()}), Audit(audit, nil, models.AuditActionDeactivate, "student", "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/fail", Audit(audit, nil, models.AuditActionOverride, "attendance", ""), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	perform(r, http.MethodPost, "/students/S1/deactivate", "Bearer good")
	perform(r, http.MethodPost, "/fail", "")

	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	assert.Equal(t, models.LecturerSubject, log.Actor)
	assert.Equal(t, models.AuditActionDeactivate, log.Action)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "S1", *log.ResourceID)
	require.NotNil(t, log.Detail)
	assert.Contains(t, *log.Detail, `"status":200`)
}

func TestAuditUsesResourceSetByHandler(t *testing.T) {
	audit := &recordingAudit{}
	r := gin.New()
	r.POST("/session/start", Audit(audit, nil, models.AuditActionSessionStart, "session", ""), func(c *gin.Context) {
		SetAuditResource(c, "session-9")
		c.Status(http.StatusCreated)
	})

	perform(r, http.MethodPost, "/session/start", "")

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "anonymous", audit.logs[0].Actor)
	require.NotNil(t, audit.logs[0].ResourceID)
	assert.Equal(t, "session-9", *audit.logs[0].ResourceID)
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := NewRateLimiter(60, 2, time.Minute)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ok, _ := limiter.Allow("10.0.0.5")
	assert.True(t, ok)
	ok, _ = limiter.Allow("10.0.0.5")
	assert.True(t, ok)
	ok, wait := limiter.Allow("10.0.0.5")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = limiter.Allow("10.0.0.6")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = limiter.Allow("10.0.0.5")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	limiter.Allow("10.0.0.7")
	assert.Len(t, limiter.buckets, 1)
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 1, time.Minute)
	r := gin.New()
	r.POST("/check-in", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/check-in", "").Code)
	rec := perform(r, http.MethodPost, "/check-in", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "TOO_MANY_REQUESTS", errorCode(t, rec))
}
