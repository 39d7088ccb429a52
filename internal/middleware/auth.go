package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/config"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/metrics"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
	"github.com/quickserve/servegate/internal/ratelimit"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID = "auth_user_id"
)

// FailureRecorder lets the auth layer leave a ledger trace for rejected
// credentials without importing the ledger package directly.
type FailureRecorder interface {
	RecordAuthFailure(ctx context.Context, clientAddr, userAgent string)
}

// APIKeyAuth guards the authenticated portal API. Callers present the
// shared key in X-API-Key and identify themselves in X-User-ID; handlers
// resolve the user record.
//
// Failed attempts are audited, and only failed attempts count against the
// login window: once an IP burns through the rule, further guesses get 429
// instead of 401 until the window drains.
func APIKeyAuth(cfg *config.Config, rec FailureRecorder, failures ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Auth.RequireAPIKey {
			c.Set(ContextUserID, c.GetHeader("X-User-ID"))
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Auth.APIKey)) != 1 {
			if rec != nil {
				rec.RecordAuthFailure(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
			}
			if failures != nil {
				rule := cfg.RateLimit.Login
				allowed, err := failures.Allow(c.Request.Context(),
					ratelimit.Key(c.ClientIP(), "login"), rule.Limit, rule.Window(), timeutil.NowUTC())
				if err == nil && !allowed {
					metrics.RateLimitRejects.WithLabelValues("login").Inc()
					c.Header("Retry-After", strconv.Itoa(rule.WindowSeconds))
					c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
						"error": apperrors.New(apperrors.ErrRateLimited, "too many failed authentication attempts", nil),
					})
					return
				}
			}
			c.AbortWithStatusJSON(401, gin.H{"error": apperrors.New(apperrors.ErrAuthFailed, "invalid or missing API key", nil)})
			return
		}

		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": apperrors.New(apperrors.ErrAuthFailed, "missing X-User-ID header", nil)})
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// AdminAuth guards the audit surface. Separate key from the portal API;
// auditors are not uploaders.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Key")
		if cfg.Auth.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Auth.AdminKey)) != 1 {
			c.AbortWithStatusJSON(401, gin.H{"error": apperrors.New(apperrors.ErrAuthFailed, "invalid or missing admin key", nil)})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller's ID, empty when unauthenticated.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
