package models

import "strings"

// CanonicalSignCode normalizes a sign code to its stored form:
// trimmed, upper-case suffix letters, underscores replaced by hyphens.
func CanonicalSignCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, "_", "-")
	return strings.ToUpper(code)
}

// SignCodeVariants returns the hyphen and underscore spellings of a code.
// Filenames embed codes in either form, e.g. "212-3" and "212_3".
func SignCodeVariants(code string) (hyphen, underscore string) {
	hyphen = CanonicalSignCode(code)
	underscore = strings.ReplaceAll(hyphen, "-", "_")
	return hyphen, underscore
}

// SameSignCode compares two codes after canonicalization.
func SameSignCode(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return CanonicalSignCode(a) == CanonicalSignCode(b)
}

// NormalizeKeyword lower-cases and trims a keyword-map phrase and
// collapses internal whitespace.
func NormalizeKeyword(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
