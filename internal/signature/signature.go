// Package signature canonicalizes task text into a stable skill lookup key.
// Normalization is purely lexical: no semantic parsing happens here, so two
// tasks map to the same signature only when their non-whitespace character
// sequences agree after case folding.
package signature

import (
	"strings"
	"unicode"
)

// trailing characters stripped from the end of a signature
const trailingPunct = ".!?,;:"

// Normalize derives the lookup signature for raw task text: lowercase,
// internal whitespace runs collapsed to single spaces, surrounding whitespace
// trimmed, trailing punctuation stripped. Normalize is idempotent.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	fields := strings.FieldsFunc(lowered, unicode.IsSpace)
	joined := strings.Join(fields, " ")
	return strings.TrimRight(joined, trailingPunct)
}
