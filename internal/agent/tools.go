// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/expression-learner/internal/llm"
	"github.com/pdiddy/expression-learner/pkg/types"
)

const (
	toolListTopics     = "list_topics"
	toolArticleSnippet = "get_article_snippet"

	defaultToolLimit = 5
	maxToolLimit     = 20

	// maxToolRounds bounds the model/tool exchanges in one turn. The round
	// after the last one is sent without tools, which forces a text reply.
	maxToolRounds = 4
)

// tools returns the function tools offered to the model, or nil when the
// agent has no topic source.
func (a *Agent) tools() []llm.Tool {
	if a.topics == nil {
		return nil
	}
	feedDesc := "RSS or Atom feed URL"
	if names := a.topics.Sources(); len(names) > 0 {
		feedDesc += ", or a configured source name: " + strings.Join(names, ", ")
	}
	return []llm.Tool{
		llm.NewTool(toolListTopics,
			"List top news headlines from an RSS feed. Each line is a headline, its source and its article URL.",
			fmt.Sprintf(`{"type":"object","properties":{"feed_url":{"type":"string","description":%q},"limit":{"type":"integer","description":"Number of headlines","default":%d}},"required":["feed_url"]}`,
				feedDesc, defaultToolLimit)),
		llm.NewTool(toolArticleSnippet,
			"Get a short snippet for a news article URL returned by list_topics.",
			`{"type":"object","properties":{"url":{"type":"string","description":"Article URL"}},"required":["url"]}`),
	}
}

// runTool executes one tool call and returns the text sent back to the
// model. Failures are reported in the text so the model can recover.
func (a *Agent) runTool(ctx context.Context, call llm.ToolCall) string {
	switch call.Function.Name {
	case toolListTopics:
		var args struct {
			FeedURL string `json:"feed_url"`
			Limit   int    `json:"limit"`
		}
		if err := decodeArgs(call, &args); err != nil {
			return err.Error()
		}
		limit := args.Limit
		if limit < 1 {
			limit = defaultToolLimit
		}
		limit = min(limit, maxToolLimit)

		var topics []types.Topic
		var err error
		if strings.Contains(args.FeedURL, "://") {
			topics, err = a.topics.ListTopics(ctx, args.FeedURL, limit)
		} else {
			topics, err = a.topics.TopicsFromSource(ctx, args.FeedURL, limit)
		}
		if err != nil {
			return "error: " + err.Error()
		}
		return formatTopics(topics)

	case toolArticleSnippet:
		var args struct {
			URL string `json:"url"`
		}
		if err := decodeArgs(call, &args); err != nil {
			return err.Error()
		}
		return a.topics.ArticleSnippet(args.URL)

	default:
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
}

func decodeArgs(call llm.ToolCall, v any) error {
	args := call.Function.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("error: invalid arguments for %s: %v", call.Function.Name, err)
	}
	return nil
}

func formatTopics(topics []types.Topic) string {
	lines := make([]string, 0, len(topics))
	for _, t := range topics {
		lines = append(lines, fmt.Sprintf("%s (%s) %s", t.Headline, t.Source, t.URL))
	}
	return strings.Join(lines, "\n")
}
