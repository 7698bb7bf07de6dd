package codec

import (
	"reflect"
	"sort"
	"testing"
)

func TestToSnakeToCamel(t *testing.T) {
	cases := map[string]string{
		"id":             "id",
		"userId":         "user_id",
		"createdAt":      "created_at",
		"lastActivityAt": "last_activity_at",
		"level2Score":    "level2_score",
	}
	for camel, snake := range cases {
		if got := ToSnake(camel); got != snake {
			t.Fatalf("ToSnake(%q)=%q want %q", camel, got, snake)
		}
		if got := ToCamel(snake); got != camel {
			t.Fatalf("ToCamel(%q)=%q want %q", snake, got, camel)
		}
	}
	if got := ToCamel("_private"); got != "_private" {
		t.Fatalf("leading underscore must be kept, got %q", got)
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestRoundTrip_NestedObjectsAndArrays(t *testing.T) {
	in := map[string]any{
		"userId":      "u1",
		"challengeId": "c1",
		"content": map[string]any{
			"starterCode": "x",
			"testCases": []any{
				map[string]any{"expectedOutput": "1", "isHidden": 0},
			},
		},
		"tags":       []any{"goLang", "sql"},
		"focusAreas": []map[string]any{{"areaName": "loops"}},
	}

	stored := ToStoreFormat(in).(map[string]any)
	if _, ok := stored["user_id"]; !ok {
		t.Fatalf("expected user_id in %v", keys(stored))
	}
	content := stored["content"].(map[string]any)
	if _, ok := content["starter_code"]; !ok {
		t.Fatalf("nested keys not converted: %v", keys(content))
	}
	tc := content["test_cases"].([]any)[0].(map[string]any)
	if _, ok := tc["expected_output"]; !ok {
		t.Fatalf("keys inside arrays not converted: %v", keys(tc))
	}
	// String values are never touched.
	if got := stored["tags"].([]any)[0]; got != "goLang" {
		t.Fatalf("array value changed: %v", got)
	}

	back := ToDomainFormat(stored)
	if !reflect.DeepEqual(back, in) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", back, in)
	}
}

func TestTransform_ScalarsAndNil(t *testing.T) {
	if got := ToStoreFormat(42); got != 42 {
		t.Fatalf("scalar changed: %v", got)
	}
	if got := ToDomainFormat(nil); got != nil {
		t.Fatalf("nil changed: %v", got)
	}
	if StoreKeys(nil) != nil || DomainKeys(nil) != nil {
		t.Fatalf("nil map must stay nil")
	}
}

type embedded struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
}

type sample struct {
	embedded
	UserID  string `json:"userId"`
	Secret  string `json:"-"`
	Plain   int
	private int
}

func TestFieldNames_FlattensEmbedded(t *testing.T) {
	got := FieldNames(&sample{})
	want := []string{"id", "createdAt", "userId", "Plain"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FieldNames=%v want %v", got, want)
	}
	if FieldNames(42) != nil {
		t.Fatalf("non-struct must yield nil")
	}
}
