// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and check input, call application
// services, and translate results (or apperr errors) into HTTP responses.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/http/middleware"
	"github.com/tbourn/go-challenge-backend/internal/services"
	"github.com/tbourn/go-challenge-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChallengeService defines challenge lifecycle operations consumed by HTTP
// handlers.
type ChallengeService interface {
	Create(ctx context.Context, userID string, in services.ChallengeInput) (*domain.Challenge, error)
	Get(ctx context.Context, userID, id string) (*domain.Challenge, error)
	Update(ctx context.Context, userID, id string, in services.ChallengeInput) (*domain.Challenge, error)
	Publish(ctx context.Context, userID, id string) (*domain.Challenge, error)
	Archive(ctx context.Context, userID, id string) (*domain.Challenge, error)
	Delete(ctx context.Context, userID, id string) error
	ListPage(ctx context.Context, userID, status string, page, pageSize int) (services.ChallengePage, error)
}

// EvaluationService defines submission and scoring operations.
type EvaluationService interface {
	Submit(ctx context.Context, userID, challengeID, response, idempotencyKey string) (services.Submission, error)
	Get(ctx context.Context, userID, id string) (*domain.Evaluation, error)
	Complete(ctx context.Context, userID, id string, score float64, feedback map[string]any) (*domain.Evaluation, error)
	ListMine(ctx context.Context, userID string, page, pageSize int) ([]*domain.Evaluation, error)
}

// ProgressService defines progress reads and direct score recording.
type ProgressService interface {
	Get(ctx context.Context, userID, challengeID string) (*domain.Progress, error)
	List(ctx context.Context, userID string) ([]*domain.Progress, error)
	RecordScore(ctx context.Context, userID, challengeID string, score float64) (*domain.Progress, error)
}

// RecommendationService defines recommendation generation and resolution.
type RecommendationService interface {
	Generate(ctx context.Context, userID string) (*domain.Recommendation, error)
	List(ctx context.Context, userID, status string, page, pageSize int) ([]*domain.Recommendation, error)
	Accept(ctx context.Context, userID, id string) (*domain.Recommendation, error)
	Dismiss(ctx context.Context, userID, id string) (*domain.Recommendation, error)
}

// JourneyService defines journey reads.
type JourneyService interface {
	List(ctx context.Context, userID string, page, pageSize int) ([]*domain.JourneyEvent, error)
}

//
// Handler wiring
//

// Services bundles the application services the handlers depend on.
type Services struct {
	Challenges      ChallengeService
	Evaluations     EvaluationService
	Progress        ProgressService
	Recommendations RecommendationService
	Journey         JourneyService
}

// Handlers groups HTTP endpoints for every resource.
type Handlers struct {
	svc Services
}

// New constructs a Handlers instance bound to the given services.
func New(svc Services) *Handlers {
	return &Handlers{svc: svc}
}

// userID returns the caller identity resolved by middleware.Identity.
func userID(c *gin.Context) string { return middleware.UserID(c) }

//
// Pagination
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"total_pages,omitempty"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const maxPageSize = 100
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// pageOf builds Pagination for a list without a known total: HasNext is
// inferred from a full page.
func pageOf(page, pageSize, n int) Pagination {
	return Pagination{Page: page, PageSize: pageSize, HasNext: n == pageSize}
}
