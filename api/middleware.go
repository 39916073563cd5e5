package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const requestIDKey = "request_id"

// RequestLoggingMiddleware tags every request with an ID and emits a
// structured log line once it completes.
func RequestLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID, err := generateUUID()
		if err != nil {
			logger.Error("failed to generate request id", "error", err)
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Log(c.Request.Context(), level, "request completed",
			"request_id", requestID,
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"status_code", status,
			"latency_ms", float64(latency)/float64(time.Millisecond),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

// AuthMiddleware requires "Authorization: Bearer <key>" and compares the key
// in constant time.
func AuthMiddleware(expectedKey string, logger *slog.Logger) gin.HandlerFunc {
	expected := []byte(expectedKey)
	return func(c *gin.Context) {
		scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || scheme != "Bearer" {
			logger.Warn("missing or unsupported authorization header",
				"request_id", c.GetString(requestIDKey), "client_ip", c.ClientIP())
			unauthorized(c)
			return
		}

		provided := []byte(strings.TrimSpace(token))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			logger.Warn("invalid api key",
				"request_id", c.GetString(requestIDKey), "client_ip", c.ClientIP())
			unauthorized(c)
			return
		}

		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
}

// RateLimitMiddleware enforces a per-IP request limit within a fixed window.
func RateLimitMiddleware(limiter RateLimiter, limit int64, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := limiter.Hit(c.Request.Context(), c.ClientIP(), window)
		if err != nil {
			logger.Error("rate limiter backend error", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		if count > limit {
			logger.Warn("rate limit exceeded", "client_ip", c.ClientIP(), "count", count)
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

const (
	// apiCSP applies to JSON responses, which never load subresources.
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// docsCSP lets the bundled Swagger UI run its inline bootstrap.
	docsCSP = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'"
)

// SecurityHeadersMiddleware adds security headers to each response. Paths
// under docsPrefix get the CSP the Swagger UI needs; everything else is locked
// down to JSON only.
func SecurityHeadersMiddleware(docsPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		headers := c.Writer.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Cache-Control", "no-store")
		if docsPrefix != "" && strings.HasPrefix(c.Request.URL.Path, docsPrefix) {
			headers.Set("Content-Security-Policy", docsCSP)
		} else {
			headers.Set("Content-Security-Policy", apiCSP)
		}
		c.Next()
	}
}
