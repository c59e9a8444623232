package engine

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is ISO-8601 with millisecond precision. In UTC it is fixed
// width, so lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout, normalized to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a created_at value. RFC 3339 input is accepted too.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// NewID returns a random identifier.
func NewID() string {
	return uuid.NewString()
}

// ID returns the record id, or "" if unset.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// CreatedAt returns the created_at value, or "" if unset.
func (r Record) CreatedAt() string {
	s, _ := r[FieldCreatedAt].(string)
	return s
}

// Clone returns a deep copy of nested maps and slices. Scalars are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// merge returns a copy of r with patch applied on top. id and created_at in
// patch are ignored.
func (r Record) merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the maps and slices a record can hold. Scalars,
// pointers and structs are returned as-is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Record:
		return t.Clone()
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		if t == nil {
			return t
		}
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []Record:
		return cloneRecords(t)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(Record(e).Clone())
		}
		return out
	default:
		return cloneReflect(reflect.ValueOf(v)).Interface()
	}
}

// cloneReflect covers the remaining map and slice kinds, keeping their
// concrete Go types.
func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), rv.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out
	default:
		return rv
	}
}

func cloneElem(e reflect.Value, typ reflect.Type) reflect.Value {
	if e.Kind() == reflect.Interface {
		if e.IsNil() {
			return reflect.Zero(typ)
		}
		e = e.Elem()
	}
	c := reflect.ValueOf(cloneValue(e.Interface()))
	if !c.IsValid() {
		return reflect.Zero(typ)
	}
	return c
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
