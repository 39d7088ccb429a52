package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/logger"
)

// ErrorHandler converts errors attached to the gin context into the
// standard JSON error body. Handlers call c.Error(err) and return;
// this runs after the chain and writes exactly one response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := apperrors.Wrap(err)

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "request failed",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr})
	}
}
