package repo

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/go-challenge-backend/internal/codec"
	"github.com/tbourn/go-challenge-backend/internal/store"
)

type fieldKind uint8

const (
	kindPlain fieldKind = iota
	kindTime
	kindJSON
)

// entityMeta describes how an entity's fields map to columns. Field names
// are the lowerCamel JSON names.
type entityMeta struct {
	fields []string
	kinds  map[string]fieldKind
}

func (m entityMeta) has(field string) bool {
	_, ok := m.kinds[field]
	return ok
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	metaCache sync.Map // reflect.Type -> entityMeta
)

func metaOf(v any) entityMeta {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if m, ok := metaCache.Load(t); ok {
		return m.(entityMeta)
	}
	m := entityMeta{fields: codec.FieldNames(v), kinds: map[string]fieldKind{}}
	walkFields(t, func(name string, ft reflect.Type) {
		m.kinds[name] = kindFor(ft)
	})
	metaCache.Store(t, m)
	return m
}

func kindFor(ft reflect.Type) fieldKind {
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	switch {
	case ft == timeType:
		return kindTime
	case ft.Kind() == reflect.Map, ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8, ft.Kind() == reflect.Struct:
		return kindJSON
	default:
		return kindPlain
	}
}

// walkFields visits exported JSON-named fields, flattening embedded structs.
func walkFields(t reflect.Type, visit func(name string, ft reflect.Type)) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			walkFields(f.Type, visit)
			continue
		}
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		visit(name, f.Type)
	}
}

// encodeRow converts an entity into a store row: keys become column names,
// times are normalized to UTC and JSON fields are serialized. Only column
// names go through the codec; JSON payloads keep their keys as written.
func encodeRow(entity any, meta entityMeta) (store.Row, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	values := make(map[string]any, len(meta.kinds))
	collectValues(v, values)

	row := make(store.Row, len(values))
	for field, val := range values {
		col := codec.ToSnake(field)
		if meta.kinds[field] != kindJSON || val == nil {
			row[col] = val
			continue
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", field, err)
		}
		row[col] = datatypes.JSON(raw)
	}
	return row, nil
}

func collectValues(v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		fv := v.Field(i)
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			collectValues(fv, out)
			continue
		}
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = plainValue(fv)
	}
}

func plainValue(fv reflect.Value) any {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
	}
	switch x := fv.Interface().(type) {
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return x.UTC()
	case map[string]any:
		if x == nil {
			return nil
		}
		return x
	default:
		if (fv.Kind() == reflect.Slice || fv.Kind() == reflect.Map) && fv.IsNil() {
			return nil
		}
		return x
	}
}

// domainValues converts a store row into a lowerCamel map with JSON fields
// parsed and times as time.Time. JSON payloads are returned untouched.
func domainValues(row store.Row, meta entityMeta) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for col, val := range row {
		out[codec.ToCamel(col)] = val
	}
	for name, val := range out {
		switch meta.kinds[name] {
		case kindJSON:
			parsed, err := parseJSON(val)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", name, err)
			}
			out[name] = parsed
		case kindTime:
			ts, err := parseTime(val)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", name, err)
			}
			if ts == nil {
				out[name] = nil
			} else {
				out[name] = *ts
			}
		}
	}
	return out, nil
}

// decodeRow builds an entity from a store row.
func decodeRow[T any](row store.Row, meta entityMeta, newFn func() T) (T, error) {
	var zero T
	values, err := domainValues(row, meta)
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return zero, err
	}
	out := newFn()
	if err := json.Unmarshal(raw, out); err != nil {
		return zero, err
	}
	return out, nil
}

func parseJSON(v any) (any, error) {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	case datatypes.JSON:
		raw = x
	default:
		// Drivers with native JSON support may already hand back decoded values.
		return x, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTime(v any) (*time.Time, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		u := x.UTC()
		return &u, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return nil, fmt.Errorf("unsupported time value %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, l := range timeLayouts {
		if ts, err := time.Parse(l, s); err == nil {
			u := ts.UTC()
			return &u, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", s)
}
