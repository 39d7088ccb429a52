package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// SessionThrottle is a per-caller token bucket in front of the
// authenticated API. Unlike the sliding-window rules, which enforce hard
// legal limits on sensitive actions, this just smooths bursts from a
// single integration gone hot.
type SessionThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

func NewSessionThrottle(qps float64, burst int) *SessionThrottle {
	if burst <= 0 {
		burst = 1
	}
	return &SessionThrottle{
		limiters: make(map[string]*rate.Limiter),
		qps:      rate.Limit(qps),
		burst:    burst,
	}
}

func (t *SessionThrottle) limiterFor(caller string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[caller]
	if !ok {
		lim = rate.NewLimiter(t.qps, t.burst)
		t.limiters[caller] = lim
	}
	return lim
}

func (t *SessionThrottle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t.qps <= 0 {
			c.Next()
			return
		}
		caller := UserID(c)
		if caller == "" {
			caller = c.ClientIP()
		}
		if !t.limiterFor(caller).Allow() {
			metrics.RateLimitRejects.WithLabelValues("session").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": apperrors.New(apperrors.ErrRateLimited, "request rate too high", nil),
			})
			return
		}
		c.Next()
	}
}
