package api

import (
	"crypto/rand"
	"fmt"

	"github.com/gin-gonic/gin"
)

func generateUUID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// Variant bits; version 4 UUID.
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

// scanID returns the request ID assigned by RequestLoggingMiddleware, or a fresh one.
func scanID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id, _ := generateUUID()
	return id
}

// resolveWorkers applies the server default and upper bound to a requested worker count.
func resolveWorkers(requested, defaultWorkers, maxWorkers int) (int, error) {
	if requested == 0 {
		return defaultWorkers, nil
	}
	if requested < 1 || requested > maxWorkers {
		return 0, fmt.Errorf("threads must be within 1-%d", maxWorkers)
	}
	return requested, nil
}
