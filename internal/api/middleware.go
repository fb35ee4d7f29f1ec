package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sumeet/opencode-openai-codex-auth/internal/logging"
)

// requestLogger logs one line per completed request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.WithFields(map[string]any{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Millisecond).String(),
		}).Debug("request completed")
	}
}

// recovery converts panics into the uniform 500 body instead of killing the
// connection mid-handshake.
func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logging.WithField("panic", recovered).Error("handler panicked")
		writeStatusError(c, errInternal)
	})
}
