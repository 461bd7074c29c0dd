package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's idempotency key on create calls.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"   // bool
	ctxKeyIdemResource = "idem.resource" // string: id created by the first call
	ctxKeyRateBypass   = "rate.bypass"   // bool
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the request repeats a completed keyed call.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReplayedResourceID returns the resource created by the original call when
// IsReplay is true.
func ReplayedResourceID(c *gin.Context) (string, bool) {
	if !IsReplay(c) {
		return "", false
	}
	s, _ := c.Get(ctxKeyIdemResource)
	id := asString(s)
	return id, id != ""
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope names the operation a key belongs to. Defaults to the route's
	// ":name" parameter, falling back to the matched route.
	Scope func(c *gin.Context) string
}

// IdempotencyLookup returns the resource ID recorded for (userID, scope,
// key) if the record is still live, or "" when there is none. Lookup errors
// never block the request.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, err error)

// IdempotencyValidator validates the Idempotency-Key header, stashes it, and
// consults lookup for a prior completed call by the same user. On a hit the
// request is marked as a replay (and exempt from edge throttling); handlers
// decide how to answer it. Without a header the middleware is a no-op; a
// malformed header is a 400.
//
// Install it after Authenticate: anonymous-to-the-server requests are
// validated but never looked up.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	scope := opts.Scope
	if scope == nil {
		scope = defaultScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "invalid-argument",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if uid := userIDFromCtx(c); lookup != nil && uid != "" {
			rid, err := lookup(c.Request.Context(), uid, scope(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if rid != "" {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyIdemResource, rid)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func defaultScope(c *gin.Context) string {
	if n := c.Param("name"); n != "" {
		return n
	}
	return c.FullPath()
}

// userIDFromCtx returns the uid set by Authenticate, or "".
func userIDFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	return asString(v)
}
