package middleware

import (
	"context"
	"net/http"
	"time"

	"salon-billing/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger tags each request with an X-Request-ID, puts a request
// scoped logger on the context and logs the outcome.
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, id := logging.WithRequestID(c.Request.Context(), c.GetHeader("X-Request-ID"))
		reqLog := base.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(ctx))
		c.Header("X-Request-ID", id)

		c.Next()

		status := c.Writer.Status()
		ev := reqLog.Info()
		if status >= http.StatusInternalServerError {
			ev = reqLog.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// Timeout bounds the request context. Handlers observe it through their
// store calls.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
