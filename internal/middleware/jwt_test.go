package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Wrap(errors.New("bad signature"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return claims, nil
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	tokens := validatorStub{
		"user-token":   {UserID: "u-1", Role: models.RoleUser},
		"dept-token":   {UserID: "u-2", Role: models.RoleDeptAdmin, Department: "Facilities"},
		"review-token": {UserID: "u-3", Role: models.RoleReviewer},
	}
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, actor.ID+"|"+string(actor.Role)+"|"+actor.Department)
	})
	router.POST("/complaints/:code/assign", chain...)
	return router
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/complaints/CMP-2024-1/assign", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newTestRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer forged").Code)

	rec := serve(router, "bearer dept-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-2|ROLE_DEPT_ADMIN|Facilities", rec.Body.String())
}

func TestRequireRoles(t *testing.T) {
	router := newTestRouter(RequireRoles(models.RoleDeptAdmin, models.RoleSuperAdmin))

	assert.Equal(t, http.StatusForbidden, serve(router, "Bearer user-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, "Bearer review-token").Code)
	assert.Equal(t, http.StatusOK, serve(router, "Bearer dept-token").Code)

	staff := newTestRouter(Staff())
	assert.Equal(t, http.StatusForbidden, serve(staff, "Bearer user-token").Code)
	assert.Equal(t, http.StatusOK, serve(staff, "Bearer review-token").Code)
}

func TestRequireRolesWithoutJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", RequireRoles(models.RoleSuperAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditLogsSuccessfulStaffActions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := newTestRouter(Audit(zap.New(core), "complaint.assign"))

	serve(router, "Bearer dept-token")
	serve(router, "Bearer forged")

	entries := logs.FilterMessage("staff action").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "complaint.assign", fields["action"])
	assert.Equal(t, "CMP-2024-1", fields["complaint_code"])
	assert.Equal(t, "u-2", fields["actor_id"])
}

type observerStub struct {
	mu    sync.Mutex
	paths []string
	codes []int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
	o.codes = append(o.codes, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	router := gin.New()
	router.Use(Metrics(obs))
	router.GET("/complaints/:code", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/complaints/CMP-1", "/wp-admin"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, []string{"/complaints/:code", "unmatched"}, obs.paths)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNotFound}, obs.codes)
}
