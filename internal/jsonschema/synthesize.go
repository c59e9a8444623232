package jsonschema

import (
	"encoding/json"
	"sort"
)

// Synthesize builds a minimal value that satisfies schema: the first enum
// entry when one is given, otherwise a zero-ish value of the declared type
// honoring required fields, minimums and minItems. It backs the offline LLM
// stub so callers still receive well-formed responses.
func Synthesize(schema Schema) any {
	if schema == nil {
		return map[string]any{}
	}
	if enum := anyList(schema["enum"]); len(enum) > 0 {
		return normalize(enum[0])
	}

	types := stringList(schema["type"])
	typ := ""
	if len(types) > 0 {
		typ = types[0]
	} else if _, ok := schema["properties"]; ok {
		typ = "object"
	}

	switch typ {
	case "object":
		return synthesizeObject(schema)
	case "array":
		n := 0
		if v, ok := toFloat(schema["minItems"]); ok {
			n = int(v)
		}
		item, _ := schema["items"].(map[string]any)
		out := make([]any, n)
		for i := range out {
			out[i] = Synthesize(item)
		}
		return out
	case "string":
		n := 0
		if v, ok := toFloat(schema["minLength"]); ok {
			n = int(v)
		}
		s := make([]rune, n)
		for i := range s {
			s[i] = 'x'
		}
		return string(s)
	case "number", "integer":
		return synthesizeNumber(schema)
	case "boolean":
		return false
	case "null":
		return nil
	}
	return map[string]any{}
}

func synthesizeObject(schema Schema) map[string]any {
	out := map[string]any{}
	props, _ := schema["properties"].(map[string]any)

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ps, _ := props[name].(map[string]any)
		out[name] = Synthesize(ps)
	}
	// Required fields without a property schema still need a value.
	for _, field := range stringList(schema["required"]) {
		if _, ok := out[field]; !ok {
			out[field] = ""
		}
	}
	return out
}

func synthesizeNumber(schema Schema) float64 {
	n := 0.0
	if v, ok := toFloat(schema["minimum"]); ok && v > n {
		n = v
	}
	if v, ok := toFloat(schema["exclusiveMinimum"]); ok && v >= n {
		n = v + 1
	}
	if v, ok := toFloat(schema["maximum"]); ok && n > v {
		n = v
	}
	return n
}

// normalize converts typed Go values (structs, []string, ints) into the
// generic shapes produced by encoding/json.
func normalize(v any) any {
	switch v.(type) {
	case nil, map[string]any, []any, string, bool, float64, json.Number:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// stringList reads a keyword that may be a single string, []string or []any.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func anyList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return nil
}
