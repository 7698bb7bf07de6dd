// Package apperr defines the typed error taxonomy shared by the persistence
// and service layers. Every error that leaves a repository is an *Error with
// one of four kinds; callers branch on the kind (or on domain sentinels via
// errors.Is) instead of inspecting messages.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies an error for retry and rendering decisions.
type Kind uint8

const (
	// KindRepository is the fallback for anything not otherwise classified.
	KindRepository Kind = iota
	// KindValidation marks malformed or missing input. Never retried.
	KindValidation
	// KindNotFound marks a lookup miss where absence is an error.
	KindNotFound
	// KindDatabase marks an infrastructure fault (connection, constraint,
	// commit). Retryable.
	KindDatabase
)

// Kinds lists every kind; mappers are expected to cover all of them.
var Kinds = []Kind{KindRepository, KindValidation, KindNotFound, KindDatabase}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDatabase:
		return "database"
	default:
		return "repository"
	}
}

// Error is the structured error record carried across layers.
type Error struct {
	Kind     Kind
	Domain   string
	Message  string
	Cause    error
	Metadata map[string]any
	// Fields holds per-field validation messages keyed by lowerCamel field name.
	Fields map[string]string

	sentinel bool
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Domain != "" {
		b.WriteString(e.Domain)
		b.WriteString(": ")
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	b.WriteString(msg)
	if e.Cause != nil {
		if c := e.Cause.Error(); c != "" && c != msg && !strings.HasSuffix(msg, c) {
			b.WriteString(": ")
			b.WriteString(c)
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinels created with Sentinel. A sentinel without a domain
// matches any error of its kind; a domain sentinel also requires the domain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return t.Kind == e.Kind && (t.Domain == "" || t.Domain == e.Domain)
}

// Meta returns a metadata value or nil.
func (e *Error) Meta(key string) any {
	if e == nil || e.Metadata == nil {
		return nil
	}
	return e.Metadata[key]
}

// Sentinel returns a comparable error value for errors.Is checks.
func Sentinel(domain string, kind Kind) *Error {
	msg := strings.ReplaceAll(kind.String(), "_", " ")
	return &Error{Kind: kind, Domain: domain, Message: msg, sentinel: true}
}

// Generic sentinels, one per kind.
var (
	ErrRepository = Sentinel("", KindRepository)
	ErrValidation = Sentinel("", KindValidation)
	ErrNotFound   = Sentinel("", KindNotFound)
	ErrDatabase   = Sentinel("", KindDatabase)
)

// New builds an *Error. meta is copied.
func New(kind Kind, domain, message string, cause error, meta map[string]any) *Error {
	return &Error{
		Kind:     kind,
		Domain:   domain,
		Message:  message,
		Cause:    cause,
		Metadata: mergeMeta(nil, meta),
	}
}

// Validation reports malformed or missing input.
func Validation(domain, message string, meta map[string]any) *Error {
	return New(KindValidation, domain, message, nil, meta)
}

// NotFound reports a missing entity; entity type and id land in metadata.
func NotFound(domain, entityType, id string) *Error {
	return New(KindNotFound, domain, entityType+" not found", nil, map[string]any{
		"entityType": entityType,
		"id":         id,
	})
}

// Database wraps an infrastructure fault raised during operation.
func Database(domain, operation string, cause error, meta map[string]any) *Error {
	m := mergeMeta(meta, map[string]any{"operation": operation})
	msg := "database error"
	if operation != "" {
		msg = "database error in " + operation
	}
	return &Error{Kind: KindDatabase, Domain: domain, Message: msg, Cause: cause, Metadata: m}
}

// Repository wraps an unclassified failure.
func Repository(domain, message string, cause error, meta map[string]any) *Error {
	return New(KindRepository, domain, message, cause, meta)
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf reports the kind of err, or false when err carries no *Error.
func KindOf(err error) (Kind, bool) {
	if ae, ok := As(err); ok {
		return ae.Kind, true
	}
	return KindRepository, false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetryable reports whether err may succeed on a later attempt.
// Validation and not-found errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	k, ok := KindOf(err)
	if !ok {
		return true
	}
	return k != KindValidation && k != KindNotFound
}

func mergeMeta(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
