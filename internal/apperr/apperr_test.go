package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func TestSentinels_MatchByKindAndDomain(t *testing.T) {
	errChallengeNotFound := Sentinel("challenge", KindNotFound)
	errEvalNotFound := Sentinel("evaluation", KindNotFound)

	err := NotFound("challenge", "challenge", "c1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected generic not-found match")
	}
	if !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected domain sentinel match")
	}
	if errors.Is(err, errEvalNotFound) {
		t.Fatalf("unexpected match across domains")
	}
	if errors.Is(err, ErrDatabase) {
		t.Fatalf("unexpected match across kinds")
	}
	if got := err.Meta("id"); got != "c1" {
		t.Fatalf("metadata id = %v", got)
	}
}

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Database("progress", "save", cause, map[string]any{"id": "p1"})
	msg := err.Error()
	if !strings.HasPrefix(msg, "progress: database error in save") || !strings.Contains(msg, "disk I/O error") {
		t.Fatalf("unexpected message %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must stay in the chain")
	}
	if err.Meta("operation") != "save" || err.Meta("id") != "p1" {
		t.Fatalf("metadata not merged: %v", err.Metadata)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), true},
		{"database", Database("", "op", nil, nil), true},
		{"repository", Repository("", "x", nil, nil), true},
		{"validation", Validation("", "bad", nil), false},
		{"notfound", NotFound("", "thing", "1"), false},
		{"wrapped validation", fmt.Errorf("outer: %w", Validation("x", "bad", nil)), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Fatalf("%s: IsRetryable=%v want %v", c.name, got, c.want)
		}
	}
}

func TestMapper_DispatchesOnKind(t *testing.T) {
	m := DomainMapper("challenge")

	for _, k := range Kinds {
		src := New(k, "", "src", errors.New("root"), map[string]any{"a": 1})
		out := m.Map(src, map[string]any{"b": 2})
		ae, ok := As(out)
		if !ok {
			t.Fatalf("kind %s: not an *Error: %T", k, out)
		}
		if ae.Kind != k || ae.Domain != "challenge" {
			t.Fatalf("kind %s: got kind=%s domain=%q", k, ae.Kind, ae.Domain)
		}
		if ae.Meta("a") != 1 || ae.Meta("b") != 2 {
			t.Fatalf("kind %s: metadata not merged: %v", k, ae.Metadata)
		}
		if !errors.Is(out, src) {
			t.Fatalf("kind %s: original must be the cause", k)
		}
	}
}

func TestMapper_PassThroughAndFallback(t *testing.T) {
	m := DomainMapper("progress")

	own := Validation("progress", "bad score", nil)
	if got := m.Map(own, nil); got != own {
		t.Fatalf("domain error must pass through unchanged")
	}

	plain := errors.New("weird")
	out := m.Map(plain, map[string]any{"operation": "findById"})
	ae, ok := As(out)
	if !ok || ae.Kind != KindRepository || ae.Domain != "progress" {
		t.Fatalf("fallback mapping wrong: %#v", out)
	}
	if !errors.Is(out, plain) {
		t.Fatalf("fallback must keep cause")
	}
	if m.Map(nil, nil) != nil {
		t.Fatalf("nil must map to nil")
	}
}

func TestMapper_MissingKindUsesFallback(t *testing.T) {
	m := NewMapper("journey", map[Kind]Constructor{
		KindValidation: For("journey", KindValidation),
	}, nil)
	out := m.Map(Database("", "op", nil, nil), nil)
	if k, _ := KindOf(out); k != KindRepository {
		t.Fatalf("expected fallback kind repository, got %s", k)
	}
	if m.Domain() != "journey" {
		t.Fatalf("domain = %q", m.Domain())
	}
}

func TestFromValidation_FieldDetail(t *testing.T) {
	type input struct {
		UserID string `json:"userId"`
		Title  string `json:"title"`
	}
	in := input{}
	verr := validation.ValidateStruct(&in,
		validation.Field(&in.UserID, validation.Required),
		validation.Field(&in.Title, validation.Required),
	)
	err := FromValidation("challenge", verr)
	ae, ok := As(err)
	if !ok || ae.Kind != KindValidation {
		t.Fatalf("expected validation error, got %#v", err)
	}
	if _, ok := ae.Fields["userId"]; !ok {
		t.Fatalf("missing userId field detail: %v", ae.Fields)
	}
	if _, ok := ae.Fields["title"]; !ok {
		t.Fatalf("missing title field detail: %v", ae.Fields)
	}
	if !strings.Contains(ae.Message, "title") || !strings.Contains(ae.Message, "userId") {
		t.Fatalf("message should list fields: %q", ae.Message)
	}
	if FromValidation("x", nil) != nil {
		t.Fatalf("nil in, nil out")
	}
}
