package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/pkg/metrics"
)

// Metrics records per-endpoint latency. Uses the route template, not the
// raw path, so /redeem/:token stays one series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
