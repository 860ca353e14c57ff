package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

type tokenTable map[string]models.UserRole

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	role, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{UserID: "u-" + strings.ToLower(string(role)), Role: role}, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tokens := tokenTable{
		"user":     models.RoleUser,
		"resolver": models.RoleResolver,
		"reviewer": models.RoleReviewer,
		"dept":     models.RoleDeptAdmin,
		"super":    models.RoleSuperAdmin,
	}
	RegisterRoutes(r.Group("/api/v1"), Handlers{
		Auth:       NewAuthHandler(nil),
		Complaints: NewComplaintHandler(&complaintServiceStub{}),
		Admin:      NewAdminComplaintHandler(&adminServiceStub{}, sweeperStub{}),
		Settings:   NewSettingsHandler(&settingsServiceStub{threshold: 0.6}),
		Reports:    NewReportHandler(&reporterStub{}),
		Files: NewFileHandler(openerStub{
			attachment: &models.Attachment{OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 3},
			content:    "pdf",
		}),
	}, tokens, zap.NewNop())
	return r
}

func TestRouteAccess(t *testing.T) {
	r := newTestRouter()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"anonymous list", http.MethodGet, "/api/v1/complaints", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/complaints", "forged", "", http.StatusUnauthorized},
		{"reporter lists own", http.MethodGet, "/api/v1/complaints", "user", "", http.StatusOK},
		{"signed file is public", http.MethodGet, "/api/v1/files/tok", "", "", http.StatusOK},
		{"reporter cannot review", http.MethodGet, "/api/v1/review/complaints", "user", "", http.StatusForbidden},
		{"resolver cannot review", http.MethodGet, "/api/v1/review/complaints", "resolver", "", http.StatusForbidden},
		{"reviewer sees queue", http.MethodGet, "/api/v1/review/complaints", "reviewer", "", http.StatusOK},
		{"reporter cannot change status", http.MethodPost, "/api/v1/admin/complaints/CMP-2024-1001/status", "user", `{"status":"IN_PROGRESS"}`, http.StatusForbidden},
		{"resolver changes status", http.MethodPost, "/api/v1/admin/complaints/CMP-2024-1001/status", "resolver", `{"status":"IN_PROGRESS"}`, http.StatusOK},
		{"dept admin exports report", http.MethodGet, "/api/v1/admin/reports/sla", "dept", "", http.StatusOK},
		{"resolver cannot export report", http.MethodGet, "/api/v1/admin/reports/sla", "resolver", "", http.StatusForbidden},
		{"dept admin cannot edit settings", http.MethodGet, "/api/v1/admin/settings/threshold", "dept", "", http.StatusForbidden},
		{"super admin reads settings", http.MethodGet, "/api/v1/admin/settings/threshold", "super", "", http.StatusOK},
		{"super admin runs sweep", http.MethodPost, "/api/v1/admin/sla/sweep", "super", "", http.StatusOK},
		{"reviewer cannot run sweep", http.MethodPost, "/api/v1/admin/sla/sweep", "reviewer", "", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
