package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's key for a retry-safe submission.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored result already exists for this
// caller, scope and key. The service still decides what to return.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen  int            // default 200
	Pattern *regexp.Regexp // default ^[A-Za-z0-9._~\-:]+$

	// Scope is the operation name stored with the key, e.g. "evaluation.submit".
	Scope string

	// Route restricts validation to one route template as reported by
	// c.FullPath(). Empty means every route.
	Route string
}

// IdempotencyLookup reports whether an unexpired result is stored for
// (userID, scope, key). Expiry is the lookup's concern.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator rejects malformed Idempotency-Key headers with 400 and
// stashes well-formed ones for GetIdempotencyKey. Requests without the header
// pass through untouched.
//
// When lookup finds a stored result the request is flagged as a replay and
// excused from rate limiting, so a client retrying after a lost response is
// not throttled. Lookup errors count as misses.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultIdemMaxLen
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultIdemPattern
	}

	return func(c *gin.Context) {
		if opts.Route != "" && c.FullPath() != opts.Route {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > opts.MaxLen || !opts.Pattern.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			exists, err := lookup(c.Request.Context(), UserID(c), opts.Scope, key, time.Now().UTC())
			if err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
				idempotentReplays.WithLabelValues(opts.Scope).Inc()
			}
		}
		c.Next()
	}
}
