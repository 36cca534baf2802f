// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. The token is resolved to
// the caller's email through an injected Authenticator so the middleware
// stays independent of storage. The email is stored in the Gin context under
// "userID", which the logger, the idempotency validator and the rate limiter
// read downstream.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyUserID holds the authenticated caller's email.
const ctxKeyUserID = "userID"

// Authenticator resolves a bearer token. ok is false for unknown tokens;
// err is reserved for lookup failures.
type Authenticator func(ctx context.Context, token string) (email string, ok bool, err error)

// AuthOptions configures BearerAuth.
type AuthOptions struct {
	// Skip exempts matching requests (health checks, metrics, CORS preflight).
	Skip func(*gin.Context) bool
}

// BearerAuth requires "Authorization: Bearer <token>" on every request not
// exempted by opts.Skip.
//
// Behavior:
//   - Missing or malformed header, or unknown token: 401 envelope with code
//     "unauthorized" and a WWW-Authenticate challenge.
//   - Lookup failure: 503 envelope with code "auth_unavailable".
//   - Success: the email is stashed under "userID". It is not added to the
//     request logger; emails are PII and the access log redacts them.
func BearerAuth(authn Authenticator, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Skip != nil && opts.Skip(c) {
			c.Next()
			return
		}

		token, found := bearerToken(c.GetHeader("Authorization"))
		if !found {
			authFailures.WithLabelValues("missing").Inc()
			c.Header("WWW-Authenticate", `Bearer realm="billsplit"`)
			abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		email, ok, err := authn(c.Request.Context(), token)
		if err != nil {
			authFailures.WithLabelValues("error").Inc()
			LoggerFrom(c).Error().Err(err).Msg("auth: token lookup failed")
			abort(c, http.StatusServiceUnavailable, "auth_unavailable", "authentication unavailable")
			return
		}
		if !ok || email == "" {
			authFailures.WithLabelValues("invalid").Inc()
			c.Header("WWW-Authenticate", `Bearer realm="billsplit", error="invalid_token"`)
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid credential")
			return
		}

		c.Set(ctxKeyUserID, email)

		c.Next()
	}
}

// UserID returns the authenticated caller's email, or "" when the request was
// not authenticated.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearerToken(h string) (string, bool) {
	h = strings.TrimSpace(h)
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
