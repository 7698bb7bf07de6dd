package apperr

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FromValidation converts an ozzo-validation result into a validation error
// with per-field detail. Internal rule failures become repository errors.
func FromValidation(domain string, err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return Repository(domain, "validation rule failed", err, nil)
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &Error{Kind: KindValidation, Domain: domain, Message: err.Error(), Cause: err}
	}
	fields := make(map[string]string, len(errs))
	flatten("", errs, fields)
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return &Error{
		Kind:     KindValidation,
		Domain:   domain,
		Message:  "invalid " + strings.Join(names, ", "),
		Cause:    err,
		Fields:   fields,
		Metadata: map[string]any{"fields": names},
	}
}

func flatten(prefix string, errs validation.Errors, out map[string]string) {
	for k, v := range errs {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		var nested validation.Errors
		if errors.As(v, &nested) {
			flatten(name, nested, out)
			continue
		}
		out[name] = v.Error()
	}
}
