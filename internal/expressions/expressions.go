// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package expressions extracts [[phrase::meaning]] markers from assistant
// replies. Extract handles a complete reply; Stream accepts the reply in
// arbitrary fragments as the model generates it and emits the same
// expressions in the same order.
//
// Malformed markers are ordinary text. Nothing in this package logs or
// returns an error for bad input.
package expressions

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/expression-learner/pkg/types"
)

// Length bounds in Unicode code points, inclusive.
const (
	MinPhraseLength  = 1
	MaxPhraseLength  = 200
	MinMeaningLength = 1
	MaxMeaningLength = 500
)

// New normalizes phrase and meaning and returns the resulting Expression
// if it passes Validate.
func New(phrase, meaning string) (types.Expression, bool) {
	phrase, meaning = Normalize(phrase, meaning)
	if !Validate(phrase, meaning) {
		return types.Expression{}, false
	}
	return types.Expression{Phrase: phrase, Meaning: meaning}, true
}

// Normalize converts tabs, newlines and carriage returns to spaces, trims
// both fields and collapses every whitespace run to a single space. Case and
// all other characters are preserved. Normalize is idempotent.
func Normalize(phrase, meaning string) (string, string) {
	return normalizeField(phrase), normalizeField(meaning)
}

func normalizeField(s string) string {
	// Fields splits on unicode.IsSpace, which covers \t \n \r, so the
	// replace, trim and collapse steps happen in one pass.
	return strings.Join(strings.Fields(s), " ")
}

// Validate reports whether an already normalized pair may become an
// Expression: both fields within their length bounds and each containing
// at least one letter or digit.
func Validate(phrase, meaning string) bool {
	if phrase == "" || meaning == "" {
		return false
	}
	if n := utf8.RuneCountInString(phrase); n < MinPhraseLength || n > MaxPhraseLength {
		return false
	}
	if n := utf8.RuneCountInString(meaning); n < MinMeaningLength || n > MaxMeaningLength {
		return false
	}
	return hasAlnum(phrase) && hasAlnum(meaning)
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
