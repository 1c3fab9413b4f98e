package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logger"
	"go.uber.org/zap"
)

// RequestLogger tags each request with an X-Request-Id (generated when the
// client sends none), stores a scoped logger in the request context and logs
// the outcome.
func RequestLogger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)

		l := base.With(zap.String("request_id", reqID))
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), l))
		c.Next()

		l.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
