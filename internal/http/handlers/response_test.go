package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func envelopeRouter(t *testing.T, rid string) (*gin.Engine, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Set("logger", &logger)
		c.Next()
	})
	return r, &buf
}

func TestErrorEnvelope_ServerErrorsLogCause(t *testing.T) {
	r, logs := envelopeRouter(t, "rid-500")
	r.GET("/boom", func(c *gin.Context) {
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", errors.New("disk on fire"))
	})
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "challenge not found")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusInternalServerError || resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal {
		t.Fatalf("unexpected 500: %d %+v", w.Code, resp)
	}
	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Fatalf("cause leaked to client: %s", w.Body.String())
	}
	if !strings.Contains(logs.String(), `"level":"error"`) || !strings.Contains(logs.String(), "disk on fire") {
		t.Fatalf("expected cause in error log, got: %s", logs.String())
	}

	logs.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound || logs.Len() != 0 {
		t.Fatalf("4xx: code=%d logs=%q", w.Code, logs.String())
	}
}

func TestSuccessHelpers(t *testing.T) {
	r, _ := envelopeRouter(t, "rid")
	r.POST("/challenges", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"id": "c1"}) })
	r.DELETE("/challenges/:id", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/challenges", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"id":"c1"`) {
		t.Fatalf("created: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/challenges/c1", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("no content: %d %q", w.Code, w.Body.String())
	}
}

func TestWeakETag(t *testing.T) {
	last := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	a := weakETag("challenges:", "u1", 3, last)
	if !strings.HasPrefix(a, `W/"`) {
		t.Fatalf("expected weak validator, got %s", a)
	}
	if a == weakETag("challenges:", "u2", 3, last) || a == weakETag("challenges:", "u1", 4, last) ||
		a == weakETag("challenges:", "u1", 3, last.Add(time.Microsecond)) {
		t.Fatalf("etag must change with user, count and last update")
	}
	if got := weakETag("k", "u", 0, time.Time{}); got != `W/"k:u:0:0"` {
		t.Fatalf("empty collection etag = %s", got)
	}
}

func TestNotModified(t *testing.T) {
	const etag = `W/"challenges::u1:3:42"`
	cases := []struct {
		name string
		inm  string
		want bool
	}{
		{"absent", "", false},
		{"exact", etag, true},
		{"strong form", `"challenges::u1:3:42"`, true},
		{"in list", `"other", ` + etag, true},
		{"wildcard", "*", true},
		{"stale", `W/"challenges::u1:2:41"`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inm != "" {
				c.Request.Header.Set("If-None-Match", tc.inm)
			}
			if got := notModified(c, etag); got != tc.want {
				t.Fatalf("notModified = %v; want %v", got, tc.want)
			}
			if w.Header().Get("ETag") != etag {
				t.Fatalf("ETag header not set")
			}
		})
	}
}
