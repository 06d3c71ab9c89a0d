// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on generation requests and
// looks up whether the same (user, key) pair already produced an insight.
// A hit is stashed in the context so the handler can replay the stored
// insight and the rate limiter can let the request through for free.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey     = "idem.key"
	ctxKeyIdemInsight = "idem.insight" // string: insight id recorded for the key
	ctxKeyRateBypass  = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the key alphabet; nil uses a token-safe default.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the insight id recorded for (userID, key) if the
// record has not expired at now.
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (insightID string, found bool)

// Idempotency must run after Auth. An absent header is a no-op; a malformed
// one aborts with 400.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
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
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if id, ok := lookup(c.Request.Context(), UserID(c), key, time.Now().UTC()); ok && id != "" {
				c.Set(ctxKeyIdemInsight, id)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// ReplayInsightID returns the insight id recorded for this request's key.
func ReplayInsightID(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemInsight)
	return s, s != ""
}
