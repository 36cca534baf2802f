// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets the response hardening headers of the directory API.
// Favorites, groups and profiles are per-user data, so authenticated
// responses are marked private and must be revalidated (the groups listing
// answers revalidation with 304 through its weak ETag).
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	HSTSMaxAge time.Duration // default 180 days
	// PrivateCache marks authenticated responses
	// "Cache-Control: private, no-cache" and varies them on Authorization.
	// Requires BearerAuth earlier in the chain.
	PrivateCache bool
	// EnablePolicy adds Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	// ExposeHeaders are appended to Access-Control-Expose-Headers. Defaults
	// to X-Request-ID, ETag and Idempotency-Replayed; X-Request-ID only when
	// the response carries one.
	ExposeHeaders []string
}

// SecurityHeaders always sets nosniff, frame denial and no-referrer, plus
// whatever opt enables.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"
	expose := opt.ExposeHeaders
	if len(expose) == 0 {
		expose = []string{requestIDHeader, "ETag", "Idempotency-Replayed"}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.PrivateCache && UserID(c) != "" {
			h.Set("Cache-Control", "private, no-cache")
			appendHeader(h, "Vary", "Authorization")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		for _, name := range expose {
			if name == requestIDHeader && h.Get(requestIDHeader) == "" {
				continue
			}
			appendHeader(h, "Access-Control-Expose-Headers", name)
		}

		c.Next()
	}
}

// appendHeader adds v to the comma-separated list in h[name] unless it is
// already there (case-insensitive). Repeated header lines are folded into one.
func appendHeader(h http.Header, name, v string) {
	var parts []string
	for _, line := range h.Values(name) {
		for _, p := range strings.Split(line, ",") {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			if strings.EqualFold(p, v) {
				return
			}
			parts = append(parts, p)
		}
	}
	h.Set(name, strings.Join(append(parts, v), ", "))
}

// isHTTPS reports whether the request arrived over TLS, directly or through
// a proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
