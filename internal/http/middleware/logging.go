package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxQueryLogLength = 2048
)

// Inbound correlation ids are echoed into logs and response headers, so only
// short token-like values are trusted.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._\-:]{1,128}$`)

// RequestID propagates a well-formed inbound X-Request-ID or mints a UUID,
// then exposes it on the response and in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one access log line per request with the raw query string.
// Use it in debug mode; RedactingLogger is the production variant.
func Logger() gin.HandlerFunc {
	return accessLogger(nil)
}

// accessLogger attaches a request-scoped logger (request_id, user_id) to the
// Gin context and to the request context, so services and repositories log
// with the same correlation fields, then logs the outcome. Severity follows
// the status: 5xx or recorded Gin errors log at error, 4xx at warn.
func accessLogger(s *scrubber) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		scoped := log.With().
			Str("request_id", currentRequestID(c)).
			Str("user_id", UserID(c)).
			Logger()
		c.Set(loggerKey, &scoped)
		c.Request = c.Request.WithContext(scoped.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case len(c.Errors) > 0:
			ev = scoped.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}

		ev = ev.Str("method", c.Request.Method).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if IsReplay(c) {
			ev = ev.Bool("idempotent_replay", true)
		}

		route, query := c.FullPath(), c.Request.URL.RawQuery
		if route == "" {
			route = c.Request.URL.Path
		}
		if s != nil {
			ev.Str("path", s.redact(route)).
				Str("query", s.redact(query)).
				Interface("headers", s.headers(c.Request.Header)).
				Msg("http_request")
			return
		}
		ev.Str("path", route).
			Str("query", truncate(query, maxQueryLogLength)).
			Str("user_agent", c.Request.UserAgent()).
			Msg("http_request")
	}
}

// currentRequestID prefers the id set by RequestID, then whatever is on the
// response, then the raw inbound header.
func currentRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s := asString(v); s != "" {
			return s
		}
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}

// Recovery turns a panic into the JSON 500 envelope, or a bare 500 when the
// handler already started writing, and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := currentRequestID(c)
			ev := LoggerFrom(c).Error()
			if _, scoped := c.Get(loggerKey); !scoped {
				ev = ev.Str("request_id", rid)
			}
			ev.Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global one when no
// access logger ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes plus an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
