package odata

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

const unknownServerError = "Unknown error from server"

var (
	messageRe     = regexp.MustCompile(`(?i)"message"\s*:\s*"([^"]+)"`)
	messageTextRe = regexp.MustCompile(`(?i)MessageText['"]?\s*[:=]\s*["']([^"']+)["']`)
	segmentRe     = regexp.MustCompile(`[\r\n.]{1,2}`)
)

// errorEnvelope covers the error shapes returned by OData V2 and V4 services
// and by the gateway in front of them.
type errorEnvelope struct {
	SAPMessages []json.RawMessage `json:"SAP__Messages"`
	Error       *struct {
		Message    json.RawMessage `json:"message"`
		InnerError *struct {
			ErrorDetailsLower []json.RawMessage `json:"errordetails"`
			ErrorDetailsUpper []json.RawMessage `json:"ErrorDetails"`
		} `json:"innererror"`
	} `json:"error"`
}

// ExtractErrorMessage pulls a human-readable message out of an error reply.
//
// Structured locations are tried first: SAP__Messages[0], error.message
// (text or an object with value/Message), then the first inner error
// detail. Otherwise the raw text is searched for a "message" or MessageText
// value, and finally the text itself is returned, shortened when long.
func ExtractErrorMessage(body []byte) string {
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil {
		if msg, ok := env.structured(); ok {
			return msg
		}
	}

	txt := string(body)
	if txt == "" {
		return unknownServerError
	}

	if m := messageRe.FindStringSubmatch(txt); m != nil {
		return m[1]
	}
	if m := messageTextRe.FindStringSubmatch(txt); m != nil {
		return m[1]
	}

	trimmed := strings.TrimSpace(txt)
	if runeLen(trimmed) < 400 {
		return trimmed
	}
	if first := segmentRe.Split(trimmed, 2)[0]; first != "" && runeLen(first) < 400 {
		return first + "..."
	}

	r := []rune(txt)
	if len(r) > 600 {
		return string(r[:600]) + "..."
	}
	return txt
}

func (env errorEnvelope) structured() (string, bool) {
	if len(env.SAPMessages) > 0 {
		return firstField(env.SAPMessages[0], "Message", "MessageText"), true
	}

	if env.Error == nil {
		return "", false
	}

	if msg := env.Error.Message; len(msg) > 0 && string(msg) != "null" {
		var s string
		if json.Unmarshal(msg, &s) == nil {
			if s != "" {
				return s, true
			}
		} else if v, ok := stringField(msg, "value", "Message"); ok {
			return v, true
		}
	}

	if ie := env.Error.InnerError; ie != nil {
		if len(ie.ErrorDetailsLower) > 0 {
			return firstField(ie.ErrorDetailsLower[0], "message", "Message", "messageValue"), true
		}
		if len(ie.ErrorDetailsUpper) > 0 {
			return firstField(ie.ErrorDetailsUpper[0], "message", "Message"), true
		}
	}
	return "", false
}

// firstField returns the first non-empty string field of raw, raw itself
// when it is a JSON string, or the compact JSON of raw.
func firstField(raw json.RawMessage, names ...string) string {
	if v, ok := stringField(raw, names...); ok {
		return v
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) == nil {
		return buf.String()
	}
	return string(raw)
}

func stringField(raw json.RawMessage, names ...string) (string, bool) {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return "", false
	}
	for _, name := range names {
		var s string
		if json.Unmarshal(obj[name], &s) == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

func runeLen(s string) int {
	return len([]rune(s))
}
