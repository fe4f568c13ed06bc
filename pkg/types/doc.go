// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the expression-learner
// service: extracted expressions, conversation sessions, news topics, the
// streamed chat events, and per-component configuration.
package types
