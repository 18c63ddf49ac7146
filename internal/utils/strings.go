package utils

import (
	"strings"
	"unicode"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
// Used for list-valued environment variables (e.g. allowed CORS origins).
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// NormalizeKey trims a join key and collapses inner whitespace runs to a single space.
// Grower IDs and ticket numbers arrive from several databases with inconsistent padding.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLabel trims, collapses whitespace and uppercases a free-text label.
func NormalizeLabel(s string) string {
	return strings.ToUpper(NormalizeKey(s))
}

// CompactUpper removes every whitespace rune and uppercases the rest.
// " global gap " and "GLOBALGAP" compare equal after this.
func CompactUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// NormalizeCaliberCode maps the different spellings of a caliber column to one code.
// "Cal3", "CAL3", " c3 " all become "c3".
func NormalizeCaliberCode(s string) string {
	code := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(code, "cal") {
		code = "c" + strings.TrimSpace(strings.TrimPrefix(code, "cal"))
	}
	return code
}
