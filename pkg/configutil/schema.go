package configutil

import (
	"sort"
	"strings"
)

// Schema defines required and optional keys for a settings map.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidationError lists the keys that failed validation, sorted.
type ValidationError struct {
	Missing []string
	Unknown []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidateSettings validates a settings map against a schema and returns a
// *ValidationError when keys are missing, blank or unknown.
// Keys are normalized to be case/underscore/hyphen insensitive.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	optional := make(map[string]struct{}, len(schema.Optional))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
	}
	for _, k := range schema.Optional {
		optional[normalizeKey(k)] = struct{}{}
	}

	missing := make([]string, 0)
	unknown := make([]string, 0)
	seen := make(map[string]bool)

	for k, v := range input {
		nk := normalizeKey(k)
		seen[nk] = true
		reqKey, isRequired := required[nk]
		_, isOptional := optional[nk]
		if !isRequired && !isOptional && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
		if isRequired && isEmptyValue(v) {
			missing = append(missing, reqKey)
		}
	}
	for nk, reqKey := range required {
		if !seen[nk] {
			missing = append(missing, reqKey)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	return &ValidationError{Missing: missing, Unknown: unknown}
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
