// Package repo implements the data persistence layer for domain entities.
// A generic Base wraps the opaque store with validation, retries, atomic
// units of work and post-commit event publication; the per-entity
// repositories in this package are thin specializations of it.
package repo

import "github.com/tbourn/go-challenge-backend/internal/apperr"

// Domain names used for error mapping, cache keys and event types.
const (
	DomainChallenge      = "challenge"
	DomainEvaluation     = "evaluation"
	DomainProgress       = "progress"
	DomainRecommendation = "recommendation"
	DomainJourney        = "journey"
	DomainIdempotency    = "idempotency"
)

// Domain sentinels for errors.Is checks at the service and HTTP layers.
var (
	ErrChallengeNotFound      = apperr.Sentinel(DomainChallenge, apperr.KindNotFound)
	ErrEvaluationNotFound     = apperr.Sentinel(DomainEvaluation, apperr.KindNotFound)
	ErrProgressNotFound       = apperr.Sentinel(DomainProgress, apperr.KindNotFound)
	ErrRecommendationNotFound = apperr.Sentinel(DomainRecommendation, apperr.KindNotFound)

	ErrChallengeValidation  = apperr.Sentinel(DomainChallenge, apperr.KindValidation)
	ErrEvaluationValidation = apperr.Sentinel(DomainEvaluation, apperr.KindValidation)
	ErrProgressValidation   = apperr.Sentinel(DomainProgress, apperr.KindValidation)

	ErrChallengeDatabase  = apperr.Sentinel(DomainChallenge, apperr.KindDatabase)
	ErrEvaluationDatabase = apperr.Sentinel(DomainEvaluation, apperr.KindDatabase)
	ErrProgressDatabase   = apperr.Sentinel(DomainProgress, apperr.KindDatabase)
)
