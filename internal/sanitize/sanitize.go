// Package sanitize implements IoTFlow's input-sanitization middleware step:
// HTML-encoding of text fields, a conservative SQL-injection denylist, and
// per-field length / JSON-depth caps, applied to decoded request bodies
// before validation runs.
package sanitize

import (
	"fmt"
	"html"
	"regexp"
)

const (
	// MaxFieldLength is the per-field cap in bytes for string values.
	MaxFieldLength = 8 * 1024
	// MaxDepth is the maximum nesting depth allowed in a decoded JSON body.
	MaxDepth = 16
)

// sqlInjectionPatterns is a conservative, keyword-boundary denylist authored
// for this project. It targets the shape of an injection attempt
// (stacked statements, comment markers, always-true tautologies, UNION-based
// exfiltration), not a general SQL grammar, and deliberately stays narrow to
// avoid false-positiving on legitimate device names/descriptions.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\bdrop\s+database\b`),
	regexp.MustCompile(`(?i);\s*--`),
	regexp.MustCompile(`(?i)/\*.*\*/`),
	regexp.MustCompile(`(?i)\bxp_cmdshell\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b.*\bvalues\b`),
}

// ErrRejected is returned when a value matches the denylist, exceeds the
// length cap, or the enclosing structure exceeds the depth cap.
type ErrRejected struct {
	Reason string
}

func (e *ErrRejected) Error() string { return "sanitize: " + e.Reason }

// Tree walks a decoded JSON value (map[string]any / []any / scalars, the
// shape produced by encoding/json.Unmarshal into `any`), HTML-encoding every
// string leaf and rejecting values that violate the length, depth,
// or denylist rules. It returns a new tree; the input is not mutated.
func Tree(v any) (any, error) {
	return walk(v, 0)
}

func walk(v any, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, &ErrRejected{Reason: fmt.Sprintf("JSON nesting exceeds max depth %d", MaxDepth)}
	}

	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			cleaned, err := walk(val, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = cleaned
		}
		return out, nil

	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			cleaned, err := walk(val, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = cleaned
		}
		return out, nil

	case string:
		return sanitizeString(t)

	default:
		return v, nil
	}
}

func sanitizeString(s string) (string, error) {
	if len(s) > MaxFieldLength {
		return "", &ErrRejected{Reason: fmt.Sprintf("field exceeds max length %d bytes", MaxFieldLength)}
	}
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(s) {
			return "", &ErrRejected{Reason: "field matches disallowed pattern"}
		}
	}
	return html.EscapeString(s), nil
}
