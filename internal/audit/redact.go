package audit

import (
	"strings"
	"unicode/utf8"
)

// RedactionMarker replaces values whose keys look sensitive.
const RedactionMarker = "[REDACTED]"

// maxStringLen bounds string values in detail payloads; longer values are cut
// with truncationSuffix appended.
const (
	maxStringLen     = 512
	truncationSuffix = "...[truncated]"
)

var sensitiveTerms = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"session",
	"cookie",
	"authorization",
	"csrf",
	"api_key",
	"apikey",
	"private_key",
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, term := range sensitiveTerms {
		if strings.Contains(k, term) {
			return true
		}
	}
	return false
}

// Redact returns a copy of detail with sensitive values replaced and long
// strings truncated, recursively through nested maps and slices. The input is
// never mutated.
func Redact(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		if sensitiveKey(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	case string:
		if len(t) > maxStringLen {
			cut := maxStringLen
			// Back up to a rune boundary so the cut never splits a
			// multi-byte character.
			for cut > 0 && !utf8.RuneStart(t[cut]) {
				cut--
			}
			return t[:cut] + truncationSuffix
		}
		return t
	default:
		return v
	}
}
