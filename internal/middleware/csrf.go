package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/metrics"
	"github.com/quickserve/servegate/internal/pkg/securetoken"
)

const csrfHeader = "X-CSRF-Token"

// CsrfGuard implements the double-submit cookie pattern. Safe methods get
// a token cookie if they lack one; state-changing methods must echo the
// cookie value in the X-CSRF-Token header. The comparison is constant
// time, and the server keeps no per-token state.
type CsrfGuard struct {
	cookieName  string
	exemptPaths map[string]struct{}
}

func NewCsrfGuard(cookieName string, exemptPaths []string) *CsrfGuard {
	if cookieName == "" {
		cookieName = "csrf_token"
	}
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return &CsrfGuard{cookieName: cookieName, exemptPaths: exempt}
}

func (g *CsrfGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.exemptPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if _, err := c.Cookie(g.cookieName); err != nil {
				g.issueCookie(c)
			}
			c.Next()
			return
		}

		cookie, err := c.Cookie(g.cookieName)
		header := c.GetHeader(csrfHeader)
		if err != nil || cookie == "" || header == "" || !securetoken.Equal(cookie, header) {
			metrics.CsrfRejects.Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": apperrors.New(apperrors.ErrCsrfMismatch, "CSRF token missing or mismatched", nil),
			})
			return
		}
		c.Next()
	}
}

func (g *CsrfGuard) issueCookie(c *gin.Context) {
	token, err := securetoken.New(securetoken.DefaultBytes)
	if err != nil {
		// Without randomness the guard cannot arm; the unsafe methods will
		// still reject for lack of a cookie.
		return
	}
	// Not HttpOnly: the double-submit pattern requires the frontend to read
	// the cookie and echo it back in the header.
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(g.cookieName, token, 0, "/", "", false, false)
}
