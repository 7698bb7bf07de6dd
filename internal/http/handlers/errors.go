// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the mapping from
// service and repository errors to HTTP responses. These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Mapping (RenderError):
//   - services.AppError      → its own status and code (5xx: generic message, cause logged)
//   - duplicate key          → 409 conflict
//   - validation             → 400 validation_failed (+ fields)
//   - not found              → 404 not_found
//   - database               → 503 unavailable (retries were exhausted)
//   - anything else          → 500 internal_error
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "challenge: validation failed",
//	  "fields": { "title": "cannot be blank" }
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// RenderError writes the error envelope matching err and aborts the request.
func RenderError(c *gin.Context, err error) {
	var ae *services.AppError
	if errors.As(err, &ae) {
		if ae.Status >= http.StatusInternalServerError {
			failCause(c, ae.Status, ae.Code, "internal server error", ae.Err)
			return
		}
		fail(c, ae.Status, ae.Code, ae.Error())
		return
	}

	e, ok := apperr.As(err)
	if !ok {
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", err)
		return
	}
	switch e.Kind {
	case apperr.KindValidation:
		if repo.IsDuplicate(e) {
			fail(c, http.StatusConflict, ErrCodeConflict, "resource already exists")
			return
		}
		failFields(c, http.StatusBadRequest, ErrCodeValidation, e.Error(), e.Fields)
	case apperr.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, e.Error())
	case apperr.KindDatabase:
		c.Header("Retry-After", "1")
		failCause(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "storage temporarily unavailable", e)
	default:
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", e)
	}
}
