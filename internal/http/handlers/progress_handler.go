// Progress, recommendation and journey HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/domain"
)

// RecordScoreRequest is the JSON payload for recording a score directly. An
// empty challengeId records against the overall progress only.
type RecordScoreRequest struct {
	ChallengeID string   `json:"challengeId" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Score       *float64 `json:"score" binding:"required" example:"85"`
}

// overallProgress is the path value selecting the overall progress record.
const overallProgress = "overall"

// ListProgressResponse lists every progress record of the user.
type ListProgressResponse struct {
	Progress []*domain.Progress `json:"progress"`
}

// ListRecommendationsResponse wraps a page of recommendations.
type ListRecommendationsResponse struct {
	Recommendations []*domain.Recommendation `json:"recommendations"`
	Pagination      Pagination               `json:"pagination"`
}

// ListJourneyResponse wraps a page of journey entries, most recent first.
type ListJourneyResponse struct {
	Events     []*domain.JourneyEvent `json:"events"`
	Pagination Pagination             `json:"pagination"`
}

// ListProgress godoc
// @ID          listProgress
// @Summary     List progress records
// @Tags        Progress
// @Produce     json
// @Success     200  {object} handlers.ListProgressResponse
// @Router      /users/me/progress [get]
func (h *Handlers) ListProgress(c *gin.Context) {
	items, err := h.svc.Progress.List(c.Request.Context(), userID(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ListProgressResponse{Progress: items})
}

// GetProgress godoc
// @ID          getProgress
// @Summary     Get progress on a challenge, or overall
// @Tags        Progress
// @Produce     json
// @Param       challengeId  path  string  true  "Challenge ID (UUID) or \"overall\""
// @Success     200  {object} domain.Progress
// @Failure     404  {object} handlers.ErrorResponse "No progress yet"
// @Router      /users/me/progress/{challengeId} [get]
func (h *Handlers) GetProgress(c *gin.Context) {
	challengeID := c.Param("challengeId")
	if challengeID == overallProgress {
		challengeID = ""
	}
	p, err := h.svc.Progress.Get(c.Request.Context(), userID(c), challengeID)
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// RecordScore godoc
// @ID          recordScore
// @Summary     Record a score
// @Description Applies an attempt to the challenge record and to the overall record.
// @Tags        Progress
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RecordScoreRequest  true  "Score"
// @Success     200  {object} domain.Progress
// @Failure     400  {object} handlers.ErrorResponse "Invalid score"
// @Router      /users/me/progress [put]
func (h *Handlers) RecordScore(c *gin.Context) {
	var req RecordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Score == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "score required")
		return
	}
	p, err := h.svc.Progress.RecordScore(c.Request.Context(), userID(c), req.ChallengeID, *req.Score)
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// GenerateRecommendation godoc
// @ID          generateRecommendation
// @Summary     Generate a recommendation
// @Description Derives the next difficulty and focus areas from progress and recent evaluations.
// @Tags        Recommendations
// @Produce     json
// @Success     201  {object} domain.Recommendation
// @Router      /users/me/recommendations [post]
func (h *Handlers) GenerateRecommendation(c *gin.Context) {
	r, err := h.svc.Recommendations.Generate(c.Request.Context(), userID(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRecommendations godoc
// @ID          listRecommendations
// @Summary     List recommendations
// @Tags        Recommendations
// @Produce     json
// @Param       status     query  string  false "Filter by status"  Enums(pending, accepted, dismissed)
// @Param       page       query  int     false "Page number"       minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"    minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListRecommendationsResponse
// @Router      /users/me/recommendations [get]
func (h *Handlers) ListRecommendations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, err := h.svc.Recommendations.List(c.Request.Context(), userID(c), c.Query("status"), page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ListRecommendationsResponse{Recommendations: items, Pagination: pageOf(page, pageSize, len(items))})
}

// AcceptRecommendation godoc
// @ID          acceptRecommendation
// @Summary     Accept a pending recommendation
// @Tags        Recommendations
// @Produce     json
// @Param       id  path  string  true  "Recommendation ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Recommendation
// @Failure     400  {object} handlers.ErrorResponse "Not pending"
// @Failure     404  {object} handlers.ErrorResponse "Recommendation not found"
// @Router      /recommendations/{id}/accept [post]
func (h *Handlers) AcceptRecommendation(c *gin.Context) {
	r, err := h.svc.Recommendations.Accept(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DismissRecommendation godoc
// @ID          dismissRecommendation
// @Summary     Dismiss a pending recommendation
// @Tags        Recommendations
// @Produce     json
// @Param       id  path  string  true  "Recommendation ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Recommendation
// @Failure     400  {object} handlers.ErrorResponse "Not pending"
// @Failure     404  {object} handlers.ErrorResponse "Recommendation not found"
// @Router      /recommendations/{id}/dismiss [post]
func (h *Handlers) DismissRecommendation(c *gin.Context) {
	r, err := h.svc.Recommendations.Dismiss(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// ListJourney godoc
// @ID          listJourney
// @Summary     List the user's journey
// @Tags        Journey
// @Produce     json
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListJourneyResponse
// @Router      /users/me/journey [get]
func (h *Handlers) ListJourney(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, err := h.svc.Journey.List(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ListJourneyResponse{Events: items, Pagination: pageOf(page, pageSize, len(items))})
}
