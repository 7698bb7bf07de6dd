package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Safe to show to users
	Message string `json:"message" example:"challenge not found"`
	// Per-field validation messages, keyed by JSON field name
	Fields map[string]string `json:"fields,omitempty"`
}

func fail(c *gin.Context, status int, code, msg string) {
	abortWith(c, status, ErrorResponse{Code: code, Message: msg}, nil)
}

func failFields(c *gin.Context, status int, code, msg string, fields map[string]string) {
	abortWith(c, status, ErrorResponse{Code: code, Message: msg, Fields: fields}, nil)
}

// failCause hides cause from the client but logs it with 5xx responses.
func failCause(c *gin.Context, status int, code, msg string, cause error) {
	abortWith(c, status, ErrorResponse{Code: code, Message: msg}, cause)
}

func abortWith(c *gin.Context, status int, body ErrorResponse, cause error) {
	body.RequestID = c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", body.Code)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, body)
}

// Fail writes the error envelope; for use outside this package (fallback
// routes).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// weakETag derives a validator for a user's collection from its size and
// newest modification time. Any write to the collection changes one of them.
func weakETag(kind, userID string, count int64, last time.Time) string {
	var ts int64
	if !last.IsZero() {
		ts = last.UnixMicro()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, userID, count, ts)
}

// notModified sets ETag and, when If-None-Match lists it (or is "*"),
// writes 304 and returns true.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, cand := range strings.Split(inm, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "*" || weakMatch(cand, etag) {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}

// weakMatch compares validators ignoring the W/ prefix.
func weakMatch(a, b string) bool {
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}
