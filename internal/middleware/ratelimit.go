package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/config"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/pkg/metrics"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
	"github.com/quickserve/servegate/internal/ratelimit"
)

// SlidingWindow applies one named rate rule keyed by client IP. Each
// (ip, action) pair gets its own window, so a caller throttled on redeem
// can still reach the login endpoints.
func SlidingWindow(store ratelimit.Store, action string, rule config.RateRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := timeutil.NowUTC()
		key := ratelimit.Key(c.ClientIP(), action)

		allowed, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window(), now)
		if err != nil {
			// Fail open: an unreachable window store should not take the
			// portal down with it.
			logger.Warn("rate limit store unavailable", "action", action, "error", err)
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejects.WithLabelValues(action).Inc()
			c.Header("Retry-After", strconv.Itoa(rule.WindowSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded for "+action, nil),
			})
			return
		}
		c.Next()
	}
}
