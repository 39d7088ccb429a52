package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCsrfRouter(guard *CsrfGuard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(guard.Handler())
	r.GET("/form", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/submit", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/hooks/delivery", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func csrfCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestCsrfGetIssuesCookie(t *testing.T) {
	r := newCsrfRouter(NewCsrfGuard("csrf_token", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/form", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	ck := csrfCookie(t, w.Result(), "csrf_token")
	require.NotNil(t, ck)
	assert.NotEmpty(t, ck.Value)
	assert.False(t, ck.HttpOnly, "frontend must be able to read the cookie")
}

func TestCsrfGetKeepsExistingCookie(t *testing.T) {
	r := newCsrfRouter(NewCsrfGuard("csrf_token", nil))

	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "existing"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, csrfCookie(t, w.Result(), "csrf_token"), "no new cookie when one is presented")
}

func TestCsrfPostMatchingPairAccepted(t *testing.T) {
	r := newCsrfRouter(NewCsrfGuard("csrf_token", nil))

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-abc"})
	req.Header.Set("X-CSRF-Token", "tok-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCsrfPostRejections(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
	}{
		{"no cookie no header", "", ""},
		{"cookie only", "tok-abc", ""},
		{"header only", "", "tok-abc"},
		{"mismatch", "tok-abc", "tok-xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newCsrfRouter(NewCsrfGuard("csrf_token", nil))
			req := httptest.NewRequest(http.MethodPost, "/submit", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "csrf_token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Contains(t, w.Body.String(), "CSRF_MISMATCH")
		})
	}
}

func TestCsrfExemptPathSkipsCheck(t *testing.T) {
	r := newCsrfRouter(NewCsrfGuard("csrf_token", []string{"/hooks/delivery"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/hooks/delivery", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
