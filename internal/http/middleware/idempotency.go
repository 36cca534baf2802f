// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header. Clients send one with
// POST /groups so that a retried create, after a timeout or a dropped
// connection, returns the group created by the first attempt instead of a
// second group. The middleware only validates the key, stashes it and asks
// a lookup whether the (caller, scope, key) triple already produced a
// resource; serving the stored resource is up to the handler.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-generated key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // resource id of the earlier result
	ctxKeyRateBypass = "rate.bypass"
)

// defaultKeyPattern accepts uuids, ulids and other URL-safe tokens.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// ReplayOf returns the id of the resource an earlier request with the same
// key created, when the lookup found one.
func ReplayOf(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// IsReplay reports whether ReplayOf found an earlier result.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayOf(c)
	return ok
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen  int            // default 200
	Pattern *regexp.Regexp // default defaultKeyPattern
	// Scope names the operation a request performs (e.g. "groups.create").
	// Requests with an empty scope are validated but never looked up.
	Scope func(*gin.Context) string
}

// IdempotencyLookup returns the id of the resource stored for
// (userID, scope, key) and still valid at now, or "" when there is none.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, err error)

// IdempotencyValidator rejects malformed keys with 400 "bad_idempotency_key"
// and passes everything else on. For authenticated, scoped requests it runs
// lookup and, on a hit, marks the request as a replay that skips rate
// limiting. Lookup errors are logged and treated as a miss.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
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
			abort(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup == nil || opts.Scope == nil {
			c.Next()
			return
		}
		uid, scope := UserID(c), opts.Scope(c)
		if uid == "" || scope == "" {
			c.Next()
			return
		}
		id, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
		} else if id != "" {
			idemReplays.WithLabelValues(scope).Inc()
			c.Set(ctxKeyIdemReplay, id)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
