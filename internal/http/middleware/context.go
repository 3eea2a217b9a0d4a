// Package middleware holds the Gin middleware of the translation API and the
// accessors handlers use to read what it stored on the request: the request
// id, the caller, the request-scoped logger, and idempotency state.
package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Gin context keys.
const (
	keyRequestID = "requestID"
	keyUserID    = "userID"
	keyLogger    = "logger"
	keyIdemKey   = "idem.key"
	keyIdemSeen  = "idem.replay"
	keyRateSkip  = "rate.bypass"
)

const (
	// HeaderRequestID carries the correlation id in both directions.
	HeaderRequestID = "X-Request-ID"
	// HeaderUserID identifies the caller when no auth layer sets one.
	HeaderUserID = "X-User-ID"

	anonymousUser = "demo-user"
	maxRequestID  = 128
	// maxQueryLogLength caps the query string written to access logs.
	maxQueryLogLength = 2048
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// RequestID reuses a well-formed inbound X-Request-ID or mints a UUID, and
// echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if len(rid) > maxRequestID || !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(keyRequestID, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

// RequestIDFrom returns the id RequestID stored, falling back to the
// response header.
func RequestIDFrom(c *gin.Context) string {
	if rid := c.GetString(keyRequestID); rid != "" {
		return rid
	}
	return c.Writer.Header().Get(HeaderRequestID)
}

// UserID returns the caller: the context value an auth layer set, then the
// X-User-ID header, then a shared anonymous id.
func UserID(c *gin.Context) string {
	if s := c.GetString(keyUserID); s != "" {
		return s
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return anonymousUser
}

// LoggerFrom returns the request-scoped logger attached by RedactingLogger,
// or the global logger.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(keyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	return &log.Logger
}

// flag reads a boolean stored under key; anything else reads as false.
func flag(c *gin.Context, key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

// truncate cuts s to max bytes plus an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
