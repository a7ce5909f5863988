package security

import (
	"strings"
)

// entities are the escape sequences SanitizeString emits. An ampersand
// already starting one of these is left alone so the function is
// idempotent: sanitize(sanitize(x)) == sanitize(x).
var entities = []string{"amp;", "lt;", "gt;", "quot;", "#x27;"}

// SanitizeString neutralizes markup and quote characters and trims
// surrounding whitespace. It always succeeds.
func SanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '&':
			if startsEntity(s[i+1:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		default:
			b.WriteByte(s[i])
		}
	}

	return strings.TrimSpace(b.String())
}

func startsEntity(rest string) bool {
	for _, entity := range entities {
		if strings.HasPrefix(rest, entity) {
			return true
		}
	}
	return false
}

// Sanitize recursively transforms an arbitrary decoded value: strings
// are escaped and trimmed, maps and slices are walked, everything else
// passes through unchanged. Pure function, never fails.
func Sanitize(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return SanitizeString(v)
	case map[string]interface{}:
		sanitized := make(map[string]interface{}, len(v))
		for key, inner := range v {
			sanitized[key] = Sanitize(inner)
		}
		return sanitized
	case []interface{}:
		sanitized := make([]interface{}, len(v))
		for i, inner := range v {
			sanitized[i] = Sanitize(inner)
		}
		return sanitized
	default:
		return value
	}
}

// SanitizeValues sanitizes url.Values-shaped inputs in place-compatible
// copy form
func SanitizeValues(input map[string][]string) map[string][]string {
	sanitized := make(map[string][]string, len(input))
	for field, values := range input {
		out := make([]string, len(values))
		for i, value := range values {
			out[i] = SanitizeString(value)
		}
		sanitized[field] = out
	}
	return sanitized
}
