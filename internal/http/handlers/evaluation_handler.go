// Evaluation HTTP handlers.
//
//   - POST /challenges/{id}/evaluations  (submit; honors Idempotency-Key)
//   - GET  /users/me/evaluations         (current user's evaluations)
//   - GET  /evaluations/{id}
//   - POST /evaluations/{id}/complete    (score)
//
// A replayed submission answers 200 with Idempotency-Replayed: true and the
// original evaluation; a first submission answers 201.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/http/middleware"
)

// HeaderIdempotencyReplayed marks responses served from a previous request.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// SubmitEvaluationRequest is the JSON payload for submitting a response.
type SubmitEvaluationRequest struct {
	Response string `json:"response" binding:"required" example:"func reverse(h *Node) *Node { ... }"`
}

// CompleteEvaluationRequest is the JSON payload for scoring an evaluation.
type CompleteEvaluationRequest struct {
	Score    *float64       `json:"score" binding:"required" example:"72.5"`
	Feedback map[string]any `json:"feedback"`
}

// ListEvaluationsResponse wraps a page of evaluations.
type ListEvaluationsResponse struct {
	Evaluations []*domain.Evaluation `json:"evaluations"`
	Pagination  Pagination           `json:"pagination"`
}

// SubmitEvaluation godoc
// @ID          submitEvaluation
// @Summary     Submit a response to a challenge
// @Description Records a pending evaluation. With an Idempotency-Key header, a retried request returns the first evaluation.
// @Tags        Evaluations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"
// @Param       Idempotency-Key  header  string  false "Deduplicates retried submissions"
// @Param       id               path    string  true  "Challenge ID (UUID)"  format(uuid)
// @Param       body             body    handlers.SubmitEvaluationRequest  true  "Submission"
//
// @Success     201  {object} domain.Evaluation
// @Success     200  {object} domain.Evaluation "Replayed"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Challenge not found"
// @Failure     409  {object} handlers.ErrorResponse "Challenge archived"
// @Failure     422  {object} handlers.ErrorResponse "Idempotency key reused"
// @Router      /challenges/{id}/evaluations [post]
func (h *Handlers) SubmitEvaluation(c *gin.Context) {
	var req SubmitEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Response) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "response required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	sub, err := h.svc.Evaluations.Submit(c.Request.Context(), userID(c), c.Param("id"), req.Response, key)
	if err != nil {
		RenderError(c, err)
		return
	}
	if sub.Replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, sub.Evaluation)
		return
	}
	ok(c, http.StatusCreated, sub.Evaluation)
}

// ListEvaluations godoc
// @ID          listEvaluations
// @Summary     List the current user's evaluations
// @Tags        Evaluations
// @Produce     json
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListEvaluationsResponse
// @Router      /users/me/evaluations [get]
func (h *Handlers) ListEvaluations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, err := h.svc.Evaluations.ListMine(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ListEvaluationsResponse{Evaluations: items, Pagination: pageOf(page, pageSize, len(items))})
}

// GetEvaluation godoc
// @ID          getEvaluation
// @Summary     Get an evaluation
// @Tags        Evaluations
// @Produce     json
// @Param       id  path  string  true  "Evaluation ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Evaluation
// @Failure     404  {object} handlers.ErrorResponse "Evaluation not found"
// @Router      /evaluations/{id} [get]
func (h *Handlers) GetEvaluation(c *gin.Context) {
	e, err := h.svc.Evaluations.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

// CompleteEvaluation godoc
// @ID          completeEvaluation
// @Summary     Score an evaluation
// @Tags        Evaluations
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Evaluation ID (UUID)"  format(uuid)
// @Param       body  body  handlers.CompleteEvaluationRequest  true  "Score and feedback"
// @Success     200  {object} domain.Evaluation
// @Failure     400  {object} handlers.ErrorResponse "Invalid score or already completed"
// @Failure     404  {object} handlers.ErrorResponse "Evaluation not found"
// @Router      /evaluations/{id}/complete [post]
func (h *Handlers) CompleteEvaluation(c *gin.Context) {
	var req CompleteEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Score == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "score required")
		return
	}
	e, err := h.svc.Evaluations.Complete(c.Request.Context(), userID(c), c.Param("id"), *req.Score, req.Feedback)
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}
