// Package codec converts record keys between the domain representation
// (lowerCamel, as in JSON tags) and the store representation (snake_case
// column names). Conversion is recursive over nested objects and arrays and
// is applied only at the repository/store boundary.
package codec

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// ToSnake converts a lowerCamel key to snake_case. Every upper-case rune
// after the first position becomes '_' plus its lower-case form.
func ToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamel converts a snake_case key to lowerCamel. An underscore followed by
// a lower-case letter collapses into the upper-case letter; leading
// underscores and any other underscores are kept.
func ToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '_' && i > 0 && i+1 < len(rs) && unicode.IsLower(rs[i+1]) && !allUnderscore(rs[:i]) {
			b.WriteRune(unicode.ToUpper(rs[i+1]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func allUnderscore(rs []rune) bool {
	for _, r := range rs {
		if r != '_' {
			return false
		}
	}
	return true
}

// ToStoreFormat returns a copy of v with every object key converted to
// snake_case. Values other than objects and arrays are returned as is.
func ToStoreFormat(v any) any { return transform(v, ToSnake) }

// ToDomainFormat returns a copy of v with every object key converted to
// lowerCamel. Values other than objects and arrays are returned as is.
func ToDomainFormat(v any) any { return transform(v, ToCamel) }

// StoreKeys is ToStoreFormat for a single object.
func StoreKeys(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return transformMap(m, ToSnake)
}

// DomainKeys is ToDomainFormat for a single object.
func DomainKeys(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return transformMap(m, ToCamel)
}

func transform(v any, key func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		return transformMap(t, key)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = transform(e, key)
		}
		return out
	case []map[string]any:
		if t == nil {
			return t
		}
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = transformMap(e, key)
		}
		return out
	default:
		return v
	}
}

func transformMap(m map[string]any, key func(string) string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[key(k)] = transform(v, key)
	}
	return out
}

var fieldCache sync.Map // reflect.Type -> []string

// FieldNames returns the JSON field names of the struct behind v, with
// embedded structs flattened. Fields tagged "-" are skipped.
func FieldNames(v any) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]string)
	}
	var names []string
	collect(t, &names)
	fieldCache.Store(t, names)
	return names
}

func collect(t reflect.Type, names *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collect(ft, names)
				continue
			}
		}
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		*names = append(*names, name)
	}
}
