package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
)

// securityHeaders sets standard hardening headers on every response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// requestLogger logs one line per request at debug, errors at warn.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("Request failed", attrs...)
			return
		}
		logger.Debug("Request", attrs...)
	}
}

// adminAuth guards mutating routes with a bearer token read from the
// environment variable named by tokenEnv. An unset token disables all
// mutations rather than leaving them open.
func adminAuth(tokenEnv string) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := os.Getenv(tokenEnv)
		if want == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "admin token is not configured",
			})
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing admin token",
			})
			return
		}
		c.Next()
	}
}
