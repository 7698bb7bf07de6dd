// Challenge HTTP handlers.
//
// This file exposes REST endpoints for challenge resources:
//   - POST   /challenges               (create)
//   - GET    /challenges               (list, paginated, ETag support)
//   - GET    /challenges/{id}          (read)
//   - PUT    /challenges/{id}          (revise)
//   - POST   /challenges/{id}/publish  (draft → active)
//   - POST   /challenges/{id}/archive  (retire)
//   - DELETE /challenges/{id}          (delete)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/services"
)

//
// DTOs
//

// ChallengeRequest is the JSON payload for creating or revising a challenge.
type ChallengeRequest struct {
	Title       string         `json:"title"       binding:"max=255" example:"Reverse a linked list"`
	Description string         `json:"description" example:"Reverse a singly linked list in place."`
	Category    string         `json:"category"    binding:"max=100" example:"data structures"`
	Difficulty  string         `json:"difficulty"  example:"intermediate"`
	Content     map[string]any `json:"content"`
	Tags        []string       `json:"tags"`
}

func (r ChallengeRequest) input() services.ChallengeInput {
	return services.ChallengeInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Difficulty:  r.Difficulty,
		Content:     r.Content,
		Tags:        r.Tags,
	}
}

// ListChallengesResponse wraps a page of challenges and pagination information.
type ListChallengesResponse struct {
	Challenges []*domain.Challenge `json:"challenges"`
	Pagination Pagination          `json:"pagination"`
}

//
// Handlers
//

// CreateChallenge godoc
// @ID          createChallenge
// @Summary     Create a challenge
// @Description Stores a new draft challenge for the current user.
// @Tags        Challenges
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ChallengeRequest  true  "Challenge payload"
//
// @Success     201  {object}  domain.Challenge
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /challenges [post]
func (h *Handlers) CreateChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ch, err := h.svc.Challenges.Create(c.Request.Context(), userID(c), req.input())
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusCreated, ch)
}

// ListChallenges godoc
// @ID          listChallenges
// @Summary     List challenges (paginated)
// @Description Returns a page of the user's challenges, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Challenges
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "Filter by status"             Enums(draft, active, archived)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChallengesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /challenges [get]
func (h *Handlers) ListChallenges(c *gin.Context) {
	uid := userID(c)
	page, pageSize := clampPagination(c)
	status := c.Query("status")

	res, err := h.svc.Challenges.ListPage(c.Request.Context(), uid, status, page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}
	if notModified(c, weakETag("challenges:"+status, uid, res.Stats.Count, res.Stats.LastUpdated)) {
		return
	}

	totalPages := int((res.Stats.Count + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListChallengesResponse{
		Challenges: res.Items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      res.Stats.Count,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetChallenge godoc
// @ID          getChallenge
// @Summary     Get a challenge
// @Tags        Challenges
// @Produce     json
// @Param       id  path  string  true  "Challenge ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Challenge
// @Failure     400  {object} handlers.ErrorResponse "Invalid id"
// @Failure     404  {object} handlers.ErrorResponse "Challenge not found"
// @Router      /challenges/{id} [get]
func (h *Handlers) GetChallenge(c *gin.Context) {
	ch, err := h.svc.Challenges.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// UpdateChallenge godoc
// @ID          updateChallenge
// @Summary     Revise a challenge
// @Tags        Challenges
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Challenge ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ChallengeRequest  true  "Revised fields"
// @Success     200  {object} domain.Challenge
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Challenge not found"
// @Router      /challenges/{id} [put]
func (h *Handlers) UpdateChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ch, err := h.svc.Challenges.Update(c.Request.Context(), userID(c), c.Param("id"), req.input())
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// PublishChallenge godoc
// @ID          publishChallenge
// @Summary     Publish a draft challenge
// @Tags        Challenges
// @Produce     json
// @Param       id  path  string  true  "Challenge ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Challenge
// @Failure     400  {object} handlers.ErrorResponse "Challenge is archived"
// @Failure     404  {object} handlers.ErrorResponse "Challenge not found"
// @Router      /challenges/{id}/publish [post]
func (h *Handlers) PublishChallenge(c *gin.Context) {
	ch, err := h.svc.Challenges.Publish(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// ArchiveChallenge godoc
// @ID          archiveChallenge
// @Summary     Archive a challenge
// @Tags        Challenges
// @Produce     json
// @Param       id  path  string  true  "Challenge ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Challenge
// @Failure     404  {object} handlers.ErrorResponse "Challenge not found"
// @Router      /challenges/{id}/archive [post]
func (h *Handlers) ArchiveChallenge(c *gin.Context) {
	ch, err := h.svc.Challenges.Archive(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// DeleteChallenge godoc
// @ID          deleteChallenge
// @Summary     Delete a challenge
// @Tags        Challenges
// @Param       id  path  string  true  "Challenge ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Challenge not found"
// @Router      /challenges/{id} [delete]
func (h *Handlers) DeleteChallenge(c *gin.Context) {
	if err := h.svc.Challenges.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		RenderError(c, err)
		return
	}
	noContent(c)
}
