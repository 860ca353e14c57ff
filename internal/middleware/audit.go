package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/pkg/middleware/requestid"
)

// Audit writes one structured log line per successful staff command. Failed requests are already
// covered by the request logger.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("audit")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		fields := []zap.Field{
			zap.String("action", action),
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestid.Value(c)),
		}
		if code := c.Param("code"); code != "" {
			fields = append(fields, zap.String("complaint_code", code))
		}
		if claims, ok := Claims(c); ok {
			fields = append(fields, zap.String("actor_id", claims.UserID), zap.String("actor_role", string(claims.Role)))
		}
		logger.Info("staff action", fields...)
	}
}
