package core

import (
	"encoding/json"
	"strconv"
	"strings"
)

// cellString renders a raw cell as text. Whole floats lose their ".0" so a
// numeric measuring point such as 10001234 stays recognisable.
func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case json.Number:
		return c.String()
	case bool:
		return strconv.FormatBool(c)
	case fmtStringer:
		return c.String()
	}
	if f, ok := numericValue(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

type fmtStringer interface{ String() string }

// isBlank mirrors the alias-lookup presence rule: nil or whitespace-only
// text counts as absent.
func isBlank(v any) bool {
	return strings.TrimSpace(cellString(v)) == ""
}

// CleanCell strips spreadsheet export artifacts from a header or value:
// surrounding whitespace, an Excel formula prefix (="..." or =...), and
// surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// truthy reads a done-after-task style flag.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	}
	if f, ok := numericValue(v); ok {
		return f != 0
	}
	switch strings.ToLower(strings.TrimSpace(cellString(v))) {
	case "", "false", "f", "no", "n", "0":
		return false
	default:
		return true
	}
}
