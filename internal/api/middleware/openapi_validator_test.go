package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidatedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mw, err := NewOpenAPIValidator("/api/v1")
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api/v1", mw)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	api.GET("/notifications", ok)
	api.POST("/notifications", ok)
	api.GET("/unlisted", ok)
	return r
}

func TestOpenAPIValidator(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "valid list query", method: http.MethodGet, target: "/api/v1/notifications?read=false&kind=alert&page=2", wantStatus: http.StatusNoContent},
		{name: "per_page above limit", method: http.MethodGet, target: "/api/v1/notifications?per_page=500", wantStatus: http.StatusBadRequest},
		{name: "unknown kind filter", method: http.MethodGet, target: "/api/v1/notifications?kind=gossip", wantStatus: http.StatusBadRequest},
		{name: "valid create", method: http.MethodPost, target: "/api/v1/notifications", body: `{"kind":"info","title":"t","message":"m"}`, wantStatus: http.StatusNoContent},
		{name: "unknown create field", method: http.MethodPost, target: "/api/v1/notifications", body: `{"kind":"info","title":"t","message":"m","colour":"red"}`, wantStatus: http.StatusBadRequest},
		{name: "path outside contract", method: http.MethodGet, target: "/api/v1/unlisted", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newValidatedRouter(t)
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := performRequest(r, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestStripBasePath(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"/api/v1", "/api/v1/notifications", "/notifications"},
		{"/api/v1", "/api/v1", "/"},
		{"/api/v1", "/api/v10/x", "/api/v10/x"},
		{"/api/v1", "/other", "/other"},
		{"", "/x", "/x"},
		{"", "", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripBasePath(tt.base, tt.path), "%s + %s", tt.base, tt.path)
	}
	assert.Equal(t, "/api/v1", normalizeBasePath(" api/v1/ "))
	assert.Equal(t, "", normalizeBasePath("/"))
}
