// Package services defines the business logic for challenges, evaluations,
// progress, recommendations and the user journey. Services own caching and
// cross-repository units of work; repositories stay free of business rules.
//
// This file centralizes service-level errors. Repository errors (the
// apperr taxonomy) pass through unchanged; AppError carries the few cases
// that need a specific HTTP status of their own and wraps anything else
// (cache faults, cancelled contexts) as an internal error.
package services

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
)

// AppError is a service error with the HTTP status and machine-readable code
// handlers should render.
type AppError struct {
	Status int
	Code   string
	Err    error
}

func (e *AppError) Error() string { return e.Err.Error() }
func (e *AppError) Unwrap() error { return e.Err }

// NewAppError wraps err with an HTTP status and code.
func NewAppError(status int, code string, err error) *AppError {
	return &AppError{Status: status, Code: code, Err: err}
}

// CodeInternal is the code of AppErrors wrapping unclassified failures.
const CodeInternal = "internal_error"

var (
	// ErrIdempotencyKeyReused is returned when an Idempotency-Key is replayed
	// for a different request than the one it first guarded.
	ErrIdempotencyKeyReused = NewAppError(http.StatusUnprocessableEntity, "idempotency_key_reused",
		errors.New("idempotency key was used for a different request"))

	// ErrChallengeArchived is returned when submitting to an archived challenge.
	ErrChallengeArchived = NewAppError(http.StatusConflict, "challenge_archived",
		errors.New("challenge is archived"))
)

// notFound builds the error returned for missing or foreign entities. Both
// cases look the same to callers so ids of other users are not disclosed.
func notFound(domainName, id string) error {
	return apperr.NotFound(domainName, domainName, id)
}

// internalError returns err unchanged when it is already a domain error or an
// AppError and wraps it as a 500 AppError otherwise.
func internalError(err error) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return NewAppError(http.StatusInternalServerError, CodeInternal, err)
}
