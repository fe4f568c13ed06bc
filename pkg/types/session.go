// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Variant is the English language variant the assistant speaks.
type Variant string

const (
	VariantUS     Variant = "US"
	VariantUK     Variant = "UK"
	VariantAU     Variant = "AU"
	VariantCA     Variant = "CA"
	VariantCustom Variant = "Custom"
)

// Variants lists the accepted language variants in display order.
var Variants = []Variant{VariantUS, VariantUK, VariantAU, VariantCA, VariantCustom}

// Valid reports whether v is one of the accepted variants.
func (v Variant) Valid() bool {
	for _, known := range Variants {
		if v == known {
			return true
		}
	}
	return false
}

// Message is one entry of a conversation history.
type Message struct {
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Session holds the state of one learner conversation.
type Session struct {
	// ID is a random UUID assigned at creation.
	ID string `json:"session_id" yaml:"session_id"`

	Variant Variant `json:"variant" yaml:"variant"`

	// Topic is the current discussion topic, usually a news headline.
	Topic string `json:"topic,omitempty" yaml:"topic,omitempty"`

	// TurnCount is the number of completed assistant turns.
	TurnCount int `json:"turn_count" yaml:"turn_count"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// Messages is the conversation history, oldest first. Only populated
	// by lookups that load the full session.
	Messages []Message `json:"messages,omitempty" yaml:"messages,omitempty"`

	// LastExpressions holds the expressions extracted from the most recent
	// assistant turn.
	LastExpressions []Expression `json:"last_expressions,omitempty" yaml:"last_expressions,omitempty"`
}

// ChatResponse summarizes a completed assistant turn.
type ChatResponse struct {
	Message     string       `json:"message" yaml:"message"`
	Expressions []Expression `json:"expressions" yaml:"expressions"`
	TurnCount   int          `json:"turn_count" yaml:"turn_count"`
}
