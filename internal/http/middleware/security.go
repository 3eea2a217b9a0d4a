package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions selects the optional hardening headers.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days

	// NoStore marks every response uncacheable; NoStorePrefixes limits that
	// to paths under one of the prefixes.
	NoStore         bool
	NoStorePrefixes []string

	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

type headerPair struct{ name, value string }

var (
	baselineHeaders = []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	policyHeaders = []headerPair{
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
		{"X-Permitted-Cross-Domain-Policies", "none"},
	}
	noStoreHeaders = []headerPair{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
	}
)

// SecurityHeaders sets API hardening headers before the handler runs, so
// they are present on error responses too.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	always := append([]headerPair(nil), baselineHeaders...)
	if opt.EnablePolicy {
		always = append(always, policyHeaders...)
	}
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge/time.Second)) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		setAll(h, always)
		if opt.NoStore || underAny(c.Request.URL.Path, opt.NoStorePrefixes) {
			setAll(h, noStoreHeaders)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

func setAll(h http.Header, pairs []headerPair) {
	for _, p := range pairs {
		h.Set(p.name, p.value)
	}
}

// isHTTPS trusts X-Forwarded-Proto from the fronting proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// underAny matches whole path segments, so /history does not cover /historyx.
func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
