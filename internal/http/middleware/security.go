package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultHSTSMaxAge = 180 * 24 * time.Hour
	permissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=()"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security, and only on HTTPS requests
	// (TLS or X-Forwarded-Proto: https).
	EnableHSTS bool
	HSTSMaxAge time.Duration // zero means 180 days

	// NoStore marks every response as uncacheable. NoStorePrefixes does the
	// same for matching request paths only, e.g. per-user progress.
	NoStore         bool
	NoStorePrefixes []string

	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

// SecurityHeaders hardens API responses. X-Content-Type-Options,
// X-Frame-Options and Referrer-Policy are always set; the rest follows opt.
// A correlation id already on the response is added to
// Access-Control-Expose-Headers so browser clients can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			[2]string{"Permissions-Policy", permissionsPolicy},
			[2]string{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}

	age := opt.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(age/time.Second), 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range static {
			h.Set(kv[0], kv[1])
		}
		if opt.NoStore || hasAnyPrefix(c.Request.URL.Path, opt.NoStorePrefixes) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers unless it is
// already listed.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	if cur == "" {
		h.Set(key, name)
		return
	}
	for _, part := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(key, cur+", "+name)
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if pre != "" && strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
