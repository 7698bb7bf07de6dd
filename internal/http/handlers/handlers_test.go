package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/http/middleware"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/services"
)

// --- fakes ---

type fakeChallenges struct {
	ChallengeService // unimplemented methods panic
	page             services.ChallengePage
	getErr           error
}

func (f *fakeChallenges) ListPage(context.Context, string, string, int, int) (services.ChallengePage, error) {
	return f.page, nil
}

func (f *fakeChallenges) Get(_ context.Context, _ string, id string) (*domain.Challenge, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.Challenge{Title: "t"}, nil
}

type fakeEvaluations struct {
	EvaluationService
	replay  bool
	gotKey  string
	gotUser string
}

func (f *fakeEvaluations) Submit(_ context.Context, userID, challengeID, response, key string) (services.Submission, error) {
	f.gotKey, f.gotUser = key, userID
	return services.Submission{Evaluation: &domain.Evaluation{ChallengeID: challengeID, Response: response}, Replayed: f.replay}, nil
}

type fakeProgress struct {
	ProgressService
	gotChallenge *string
}

func (f *fakeProgress) Get(_ context.Context, _ string, challengeID string) (*domain.Progress, error) {
	f.gotChallenge = &challengeID
	return &domain.Progress{ChallengeID: challengeID}, nil
}

func newRouter(svc Services) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	h := New(svc)
	r.GET("/challenges", h.ListChallenges)
	r.GET("/challenges/:id", h.GetChallenge)
	r.POST("/challenges/:id/evaluations", h.SubmitEvaluation)
	r.GET("/users/me/progress/:challengeId", h.GetProgress)
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}

// --- tests ---

func TestRenderError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperr.NotFound("challenge", "challenge", "c1"), http.StatusNotFound, ErrCodeNotFound},
		{"validation", apperr.Validation("challenge", "title required", nil), http.StatusBadRequest, ErrCodeValidation},
		{"duplicate", apperr.Validation("challenge", "duplicate", map[string]any{"reason": "duplicate"}), http.StatusConflict, ErrCodeConflict},
		{"database", apperr.Database("challenge", "save", errors.New("disk"), nil), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"repository", apperr.Repository("challenge", "boom", nil, nil), http.StatusInternalServerError, ErrCodeInternal},
		{"plain", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
		{"app error", services.ErrChallengeArchived, http.StatusConflict, "challenge_archived"},
		{"wrapped app error", errors.Join(errors.New("ctx"), services.ErrIdempotencyKeyReused), http.StatusUnprocessableEntity, "idempotency_key_reused"},
		{"internal app error", services.NewAppError(http.StatusInternalServerError, services.CodeInternal, errors.New("cache: secret detail")), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			RenderError(c, tc.err)
			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d", w.Code, tc.wantStatus)
			}
			er := decodeError(t, w)
			if er.Code != tc.wantCode {
				t.Fatalf("code=%q want %q", er.Code, tc.wantCode)
			}
			if tc.wantStatus == http.StatusInternalServerError && strings.Contains(er.Message, "secret") {
				t.Fatalf("internal cause leaked: %q", er.Message)
			}
			if tc.wantStatus == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
				t.Fatalf("expected Retry-After on 503")
			}
		})
	}
}

func TestRenderError_DuplicateHelperAgrees(t *testing.T) {
	err := apperr.Validation("x", "dup", map[string]any{"reason": "duplicate"})
	if !repo.IsDuplicate(err) {
		t.Fatalf("expected duplicate detection")
	}
}

func TestRenderError_ValidationFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	err := &apperr.Error{Kind: apperr.KindValidation, Domain: "challenge", Message: "invalid title",
		Fields: map[string]string{"title": "cannot be blank"}}
	RenderError(c, err)

	er := decodeError(t, w)
	if w.Code != http.StatusBadRequest || er.Fields["title"] != "cannot be blank" {
		t.Fatalf("unexpected response: %d %+v", w.Code, er)
	}
}

func TestListChallenges_ETagNotModified(t *testing.T) {
	last := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fc := &fakeChallenges{page: services.ChallengePage{
		Items: []*domain.Challenge{{Title: "a"}},
		Stats: repo.Stats{Count: 1, LastUpdated: last},
	}}
	r := newRouter(Services{Challenges: fc})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/challenges?page=1&page_size=10", nil)
	req.Header.Set(middleware.HeaderUserID, "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first list: %d %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak etag, got %q", etag)
	}
	var body ListChallengesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Pagination.Total != 1 || body.Pagination.TotalPages != 1 || body.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/challenges?page=1&page_size=10", nil)
	req.Header.Set(middleware.HeaderUserID, "u1")
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// another user never shares the validator
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/challenges?page=1&page_size=10", nil)
	req.Header.Set(middleware.HeaderUserID, "u2")
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for other user, got %d", w.Code)
	}
}

func TestGetChallenge_NotFound(t *testing.T) {
	fc := &fakeChallenges{getErr: apperr.NotFound("challenge", "challenge", "nope")}
	r := newRouter(Services{Challenges: fc})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/challenges/nope", nil))
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != ErrCodeNotFound {
		t.Fatalf("expected 404 not_found, got %d %s", w.Code, w.Body.String())
	}
}

func TestSubmitEvaluation_CreatedAndReplayed(t *testing.T) {
	fe := &fakeEvaluations{}
	r := newRouter(Services{Evaluations: fe})

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/challenges/c1/evaluations", strings.NewReader(`{"response":"answer"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderIdempotencyKey, "k-1")
		req.Header.Set(middleware.HeaderUserID, "u1")
		r.ServeHTTP(w, req)
		return w
	}

	w := send()
	if w.Code != http.StatusCreated || w.Header().Get(HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first submit: %d replayed=%q", w.Code, w.Header().Get(HeaderIdempotencyReplayed))
	}
	if fe.gotKey != "k-1" || fe.gotUser != "u1" {
		t.Fatalf("service got key=%q user=%q", fe.gotKey, fe.gotUser)
	}

	fe.replay = true
	w = send()
	if w.Code != http.StatusOK || w.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d replayed=%q", w.Code, w.Header().Get(HeaderIdempotencyReplayed))
	}
}

func TestSubmitEvaluation_BlankResponse(t *testing.T) {
	r := newRouter(Services{Evaluations: &fakeEvaluations{}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/challenges/c1/evaluations", strings.NewReader(`{"response":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetProgress_OverallAlias(t *testing.T) {
	fp := &fakeProgress{}
	r := newRouter(Services{Progress: fp})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me/progress/overall", nil))
	if w.Code != http.StatusOK || fp.gotChallenge == nil || *fp.gotChallenge != "" {
		t.Fatalf("overall should query the empty challenge id: %d %v", w.Code, fp.gotChallenge)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me/progress/c9", nil))
	if w.Code != http.StatusOK || *fp.gotChallenge != "c9" {
		t.Fatalf("challenge progress: %d %q", w.Code, *fp.gotChallenge)
	}
}

func TestClampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string][2]int{
		"":                       {1, 20},
		"page=0&page_size=0":     {1, 1},
		"page=3&page_size=500":   {3, 100},
		"page=abc&page_size=xyz": {1, 20},
	}
	for q, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		p, ps := clampPagination(c)
		if p != want[0] || ps != want[1] {
			t.Fatalf("%q: got (%d,%d) want %v", q, p, ps, want)
		}
	}
}
