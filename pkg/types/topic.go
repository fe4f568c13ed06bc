// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Topic is a discussion topic taken from a news feed entry.
type Topic struct {
	// Headline is the entry title.
	Headline string `json:"headline" yaml:"headline"`

	// Source is the news source name (e.g. "BBC").
	Source string `json:"source" yaml:"source"`

	// URL links to the full article.
	URL string `json:"url" yaml:"url"`
}
