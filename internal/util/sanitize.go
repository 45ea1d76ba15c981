package util

import (
	"strings"
	"unicode"

	"hive-auth/pkg/apierror"
)

// CleanLabel strips control and invisible characters from a user-supplied
// label, trims it and cuts it to maxRunes runes.
func CleanLabel(s string, maxRunes int) string {
	builder := strings.Builder{}
	builder.Grow(len(s))

	for _, char := range s {
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.TrimSpace(builder.String())

	// Truncate by runes (not bytes) to avoid splitting multi-byte characters.
	if runes := []rune(cleaned); maxRunes > 0 && len(runes) > maxRunes {
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}

// Label is CleanLabel for required fields.
func Label(s string, field string, maxRunes int) (string, error) {
	cleaned := CleanLabel(s, maxRunes)
	if cleaned == "" {
		return "", apierror.Validation(strings.ReplaceAll(field, "_", " ")+" is required", field)
	}
	return cleaned, nil
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
