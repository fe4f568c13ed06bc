// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package expressions

import "github.com/pdiddy/expression-learner/pkg/types"

// Extract returns the valid expressions in text in the order their markers
// open. Markers whose fields fail validation are dropped silently. Extract
// has no side effects and is safe for concurrent use.
func Extract(text string) []types.Expression {
	var result []types.Expression
	for _, m := range scanMarkers([]byte(text)) {
		if expr, ok := New(m.phrase, m.meaning); ok {
			result = append(result, expr)
		}
	}
	return result
}

// ExtractFragments feeds fragments through a fresh Stream and returns what
// it emits. The result equals Extract of the concatenated fragments.
func ExtractFragments(fragments []string) []types.Expression {
	var result []types.Expression
	s := NewStream(func(expr types.Expression) {
		result = append(result, expr)
	})
	for _, f := range fragments {
		// A private stream cannot be finished or shared, so Feed cannot fail.
		_ = s.Feed(f)
	}
	_ = s.Finish()
	return result
}
