package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseNumber coerces a reading or difference cell into a float64.
//
// Numbers pass through unchanged. Strings are tried as-is first; failing
// that every rune other than digits, '.', '-' and ',' is stripped and the
// separators are resolved: with both present the later one is the decimal
// point, a lone comma is a decimal comma, and repeated commas are grouping.
// The second result is false for absent, blank or unusable input.
func ParseNumber(raw any) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	if f, ok := numericValue(raw); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}

	s := strings.TrimSpace(cellString(raw))
	if s == "" {
		return 0, false
	}
	if f, ok := parseFinite(s); ok {
		return f, true
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == ',':
			return r
		default:
			return -1
		}
	}, s)

	return parseFinite(resolveSeparators(cleaned))
}

// NumberPtr is ParseNumber returning nil for absent values.
func NumberPtr(raw any) *float64 {
	f, ok := ParseNumber(raw)
	if !ok {
		return nil
	}
	return &f
}

func resolveSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma < 0:
		return s
	case lastDot >= 0 && lastDot > lastComma:
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ",") == 1:
		return strings.Replace(s, ",", ".", 1)
	default:
		return strings.ReplaceAll(s, ",", "")
	}
}

// parseFinite accepts plain decimal notation only; ParseFloat would also
// take "Inf", "NaN" and hex floats.
func parseFinite(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "xXpPiInN_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// numericValue unwraps Go numeric kinds and json.Number.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
