package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const redactedValue = "[REDACTED]"

// Applied in order: ids first so the phone pattern cannot eat UUID digit
// groups. The phone pattern is digits only for the same reason.
var redactRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

// Always masked, in canonical form.
var defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", HeaderIdempotencyKey}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced wholesale with "[REDACTED]" on top of
	// Authorization, Cookie, Set-Cookie and Idempotency-Key.
	MaskHeaders []string
}

// RedactingLogger is the production access logger. Bodies are never logged;
// the route, query string and request headers are logged with ids, emails
// and phone numbers replaced, and credential-bearing headers masked.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	return accessLogger(newScrubber(opts.MaskHeaders))
}

type scrubber struct {
	masked map[string]struct{}
}

func newScrubber(extra []string) *scrubber {
	s := &scrubber{masked: make(map[string]struct{}, len(defaultMaskedHeaders)+len(extra))}
	for _, h := range append(append([]string(nil), defaultMaskedHeaders...), extra...) {
		if h = strings.TrimSpace(h); h != "" {
			s.masked[http.CanonicalHeaderKey(h)] = struct{}{}
		}
	}
	return s
}

func (s *scrubber) redact(v string) string {
	for _, r := range redactRules {
		if v == "" {
			break
		}
		v = r.re.ReplaceAllString(v, r.repl)
	}
	return v
}

func (s *scrubber) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := s.masked[http.CanonicalHeaderKey(k)]; ok {
			out[k] = redactedValue
			continue
		}
		out[k] = s.redact(strings.Join(vv, ", "))
	}
	return out
}
