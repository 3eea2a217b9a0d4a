package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey names the header clients send to make a create safe
// to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

const defaultIdemMaxLen = 200

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// IdempotencyOptions bounds what the validator accepts as a key.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means token characters plus ._~:-
}

// IdempotencyLookup reports whether (userID, scope, key) already has an
// unexpired result. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyScope is the route pattern a key is stored under, or the raw
// path for unmatched requests.
func IdempotencyScope(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// GetIdempotencyKey returns the key IdempotencyValidator accepted.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := c.GetString(keyIdemKey)
	return k, k != ""
}

// IsReplay reports whether lookup found a prior result for this request.
func IsReplay(c *gin.Context) bool { return flag(c, keyIdemSeen) }

// IdempotencyValidator rejects malformed Idempotency-Key headers with 400 and
// stores valid ones for handlers. When lookup finds a prior result the request
// is marked as a replay and exempted from rate limiting; serving the replay
// stays with the handler.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultIdemMaxLen
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > opts.MaxLen || !opts.Pattern.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(c, "bad_idempotency_key", "invalid Idempotency-Key"))
			return
		}
		c.Set(keyIdemKey, key)

		if lookup != nil {
			hit, err := lookup(c.Request.Context(), UserID(c), IdempotencyScope(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if hit && err == nil {
				c.Set(keyIdemSeen, true)
				c.Set(keyRateSkip, true)
			}
		}
		c.Next()
	}
}
