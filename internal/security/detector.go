package security

import (
	"regexp"
	"sort"
	"strconv"
)

// Detection is the result of scanning one input surface. When Detected is
// true, Field names the offending input and Pattern the signature that
// fired.
type Detection struct {
	Detected bool   `json:"detected"`
	Field    string `json:"field,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Value    string `json:"value,omitempty"`
}

// injectionPatterns is the fixed, ordered signature list. This is a
// tripwire, not a SQL parser: false positives and false negatives are
// accepted, and the honeypot downstream makes a false positive cheap.
var injectionPatterns = []*regexp.Regexp{
	// Quote and comment markers, raw or URL-encoded
	regexp.MustCompile(`(?i)(%27)|(')|(--)|(%23)|(#)`),
	// Assignment followed by a terminator, e.g. "a=1'; ..."
	regexp.MustCompile(`(?i)((%3D)|(=))[^\n]*((%27)|(')|(--)|(%3B)|(;))`),
	// Tautology probes: ' OR and encoded variants
	regexp.MustCompile(`(?i)\w*((%27)|('))((%6F)|o|(%4F))((%72)|r|(%52))`),
	// UNION-based extraction
	regexp.MustCompile(`(?i)((%27)|('))union`),
	regexp.MustCompile(`(?i)union(\s+)all(\s+)select`),
	// Stored-procedure execution
	regexp.MustCompile(`(?i)exec(\s|\+)+(s|x)p\w+`),
	// DML/DDL keywords
	regexp.MustCompile(`(?i)INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE`),
	regexp.MustCompile(`(?i)SELECT.*FROM`),
	// Timing attacks
	regexp.MustCompile(`(?i)SLEEP\(\d+\)`),
	regexp.MustCompile(`(?i)BENCHMARK\(\d+,.*\)`),
	regexp.MustCompile(`(?i)WAITFOR DELAY`),
}

// Inspect scans the string-typed fields of input against the signature
// list. Evaluation is first-match-wins: fields are visited in sorted
// order and scanning stops at the first field whose value matches any
// pattern. Non-string values are skipped. No side effects.
func Inspect(input map[string]interface{}) Detection {
	if len(input) == 0 {
		return Detection{}
	}

	fields := make([]string, 0, len(input))
	for field := range input {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, ok := input[field].(string)
		if !ok {
			continue
		}

		for _, pattern := range injectionPatterns {
			if pattern.MatchString(value) {
				return Detection{
					Detected: true,
					Field:    field,
					Pattern:  pattern.String(),
					Value:    value,
				}
			}
		}
	}

	return Detection{}
}

// InspectValues is Inspect for url.Values-shaped inputs (query strings,
// path segments): each listed value is checked under its key.
func InspectValues(input map[string][]string) Detection {
	flattened := make(map[string]interface{}, len(input))
	for field, values := range input {
		for i, value := range values {
			key := field
			if i > 0 {
				key = field + "_" + strconv.Itoa(i)
			}
			flattened[key] = value
		}
	}
	return Inspect(flattened)
}
