// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Expression is an idiom or phrase the assistant marked up as
// [[phrase::meaning]] in its reply.
//
// Values are produced by the expressions package after normalization and
// validation; code outside that package should treat them as read-only.
// Two expressions are equal when both fields are equal.
type Expression struct {
	// Phrase is the idiom itself (e.g. "a piece of cake"), 1-200 characters.
	Phrase string `json:"phrase" yaml:"phrase"`

	// Meaning is the explanation of the phrase, 1-500 characters.
	Meaning string `json:"meaning" yaml:"meaning"`
}
