package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger пишет по строке на каждый запрос. Ответы 5xx логируются как ошибки.
func Logger(l *logrus.Logger) gin.HandlerFunc {
	entry := l.WithFields(logrus.Fields{
		"component": "api",
		"module":    "http",
	})

	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"size":     c.Writer.Size(),
			"duration": time.Since(started),
			"clientIP": c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.WithFields(fields).Error("request")
		case status >= 400:
			entry.WithFields(fields).Warn("request")
		default:
			entry.WithFields(fields).Info("request")
		}
	}
}
