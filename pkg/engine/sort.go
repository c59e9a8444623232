package engine

import (
	"encoding/json"
	"sort"
	"strings"
)

// applyListOptions sorts and truncates records in place and returns the result.
func applyListOptions(records []Record, opts ListOptions) []Record {
	if opts.Sort != "" {
		key, desc := parseSortKey(opts.Sort)
		if key != "" {
			sortRecords(records, key, desc)
		}
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records
}

// parseSortKey splits "-field" into ("field", true).
func parseSortKey(s string) (string, bool) {
	if strings.HasPrefix(s, "-") {
		return s[1:], true
	}
	return s, false
}

// sortRecords orders records by key. Records without the key (or with a nil
// value) always go last, whichever the direction. Ties keep their order.
func sortRecords(records []Record, key string, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := records[i][key]
		b, bok := records[j][key]
		aok = aok && a != nil
		bok = bok && b != nil
		switch {
		case !aok && !bok:
			return false
		case !aok:
			return false
		case !bok:
			return true
		}
		if desc {
			return compareValues(b, a) < 0
		}
		return compareValues(a, b) < 0
	})
}

// kind ranks for mixed-type ordering: numbers < strings < booleans < other.
const (
	kindNumber = iota
	kindString
	kindBool
	kindOther
)

func compareValues(a, b any) int {
	ka, kb := valueKind(a), valueKind(b)
	if ka != kb {
		return ka - kb
	}
	switch ka {
	case kindNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case kindString:
		return strings.Compare(a.(string), b.(string))
	case kindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	}
	return 0
}

func valueKind(v any) int {
	if _, ok := toFloat(v); ok {
		return kindNumber
	}
	switch v.(type) {
	case string:
		return kindString
	case bool:
		return kindBool
	}
	return kindOther
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
