package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.Any("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/api/v1/challenges", nil))

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s: %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		want     string
	}{
		{"empty", "", "X-Request-ID"},
		{"append", "ETag", "ETag, X-Request-ID"},
		{"already listed", "ETag, x-request-id", "ETag, x-request-id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header("X-Request-ID", "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			}
			h := serveSecurity(t, SecurityOptions{}, pre, httptest.NewRequest(http.MethodGet, "/", nil))
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_NoStorePrefixes(t *testing.T) {
	opt := SecurityOptions{NoStorePrefixes: []string{"/api/v1/users/me"}}

	h := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/api/v1/users/me/progress", nil))
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("expected no-store on per-user route: %#v", h)
	}

	h = serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/api/v1/challenges", nil))
	if h.Get("Cache-Control") != "" {
		t.Fatalf("unexpected Cache-Control on shared route: %q", h.Get("Cache-Control"))
	}
}

func TestSecurityHeaders_PolicyNoStoreHSTS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	h := serveSecurity(t, SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, req)

	if h.Get("Permissions-Policy") != permissionsPolicy || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" {
		t.Fatalf("missing no-store: %#v", h)
	}
	if got, want := h.Get("Strict-Transport-Security"), "max-age=86400; includeSubDomains; preload"; got != want {
		t.Fatalf("HSTS: got %q want %q", got, want)
	}
}

func TestSecurityHeaders_HSTSDefaultsAndPlainHTTP(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true}

	h := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/", nil))
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	h = serveSecurity(t, opt, nil, req)
	if got, want := h.Get("Strict-Transport-Security"), "max-age=15552000; includeSubDomains; preload"; got != want {
		t.Fatalf("HSTS default: got %q want %q", got, want)
	}
}
