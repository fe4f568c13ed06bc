// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent runs conversation turns: it prompts the language model in
// the session's English variant, relays the streamed reply and extracts the
// marked expressions from it while the reply is still arriving.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/pdiddy/expression-learner/internal/expressions"
	"github.com/pdiddy/expression-learner/internal/llm"
	"github.com/pdiddy/expression-learner/pkg/types"
)

var systemPromptTmpl = template.Must(template.New("system").Parse(
	`You are a helpful {{.Variant}} English native speaker.{{if .Topic}} Topic: {{.Topic}}.{{end}} Use idioms naturally and format them as [[phrase::meaning]].`))

// ErrEmptyMessage is returned by Chat for a blank user message.
var ErrEmptyMessage = errors.New("message cannot be empty")

// ChatBackend streams a model reply, offering tools the model may call.
// *llm.Client satisfies it.
type ChatBackend interface {
	StreamTools(ctx context.Context, messages []llm.Message, tools []llm.Tool, onDelta func(string) error) (llm.Reply, error)
}

// SessionStore is the persistence the agent needs. *sessions.Store
// satisfies it.
type SessionStore interface {
	Get(ctx context.Context, id string) (types.Session, error)
	SetTopic(ctx context.Context, id, topic string) error
	CompleteTurn(ctx context.Context, id string, user types.Message, reply string, exprs []types.Expression) (int, error)
}

// TopicSource lists news headlines and article snippets. *feeds.Client
// satisfies it.
type TopicSource interface {
	TopicsFromSources(ctx context.Context, sources []string, limitPerSource int) map[string][]types.Topic
	TopicsFromSource(ctx context.Context, source string, limit int) ([]types.Topic, error)
	ListTopics(ctx context.Context, feedURL string, limit int) ([]types.Topic, error)
	ArticleSnippet(url string) string
	Sources() []string
}

// EventFunc receives events as a turn progresses. A non-nil error aborts
// the turn.
type EventFunc func(types.ChatEvent) error

// Agent runs conversation turns against a session store.
type Agent struct {
	backend ChatBackend
	store   SessionStore
	topics  TopicSource
	logger  *slog.Logger

	// TopicsPerSource bounds the headlines StartChat offers per feed.
	TopicsPerSource int
}

// New returns an Agent. topics may be nil, in which case StartChat offers
// no headlines.
func New(backend ChatBackend, store SessionStore, topics TopicSource, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		backend:         backend,
		store:           store,
		topics:          topics,
		logger:          logger,
		TopicsPerSource: 5,
	}
}

// SystemPrompt renders the system message for a variant and topic. The
// topic sentence is omitted when topic is empty.
func SystemPrompt(variant types.Variant, topic string) (string, error) {
	var b strings.Builder
	err := systemPromptTmpl.Execute(&b, struct {
		Variant types.Variant
		Topic   string
	}{variant, strings.TrimSpace(topic)})
	if err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return b.String(), nil
}

// Chat streams the assistant reply to message and persists the user
// message, the reply and the expressions found in it as one turn. Tool
// calls requested by the model are answered before the reply continues.
// Events are sent in order: one chunk per reply fragment, one expressions
// event, then done. A failed turn leaves the session unchanged.
func (a *Agent) Chat(ctx context.Context, sessionID, message string, onEvent EventFunc) (types.ChatResponse, error) {
	if strings.TrimSpace(message) == "" {
		return types.ChatResponse{}, ErrEmptyMessage
	}
	if onEvent == nil {
		onEvent = func(types.ChatEvent) error { return nil }
	}

	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return types.ChatResponse{}, err
	}
	user := types.Message{Role: types.RoleUser, Content: message, Timestamp: time.Now().UTC()}

	prompt, err := SystemPrompt(sess.Variant, sess.Topic)
	if err != nil {
		return types.ChatResponse{}, err
	}
	history := make([]llm.Message, 0, len(sess.Messages)+2)
	history = append(history, llm.Message{Role: "system", Content: prompt})
	for _, m := range sess.Messages {
		history = append(history, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	history = append(history, llm.Message{Role: string(types.RoleUser), Content: message})

	found := []types.Expression{}
	stream := expressions.NewStream(func(e types.Expression) {
		found = append(found, e)
	})
	onDelta := func(delta string) error {
		if err := onEvent(types.ChatEvent{Type: types.EventChunk, Content: delta}); err != nil {
			return err
		}
		return stream.Feed(delta)
	}

	var reply strings.Builder
	tools := a.tools()
	for round := 0; ; round++ {
		offer := tools
		if round >= maxToolRounds {
			offer = nil
		}
		out, err := a.backend.StreamTools(ctx, history, offer, onDelta)
		if err != nil {
			return types.ChatResponse{}, fmt.Errorf("streaming reply: %w", err)
		}
		reply.WriteString(out.Content)
		if len(out.ToolCalls) == 0 || offer == nil {
			break
		}

		history = append(history, llm.Message{Role: "assistant", Content: out.Content, ToolCalls: out.ToolCalls})
		for _, call := range out.ToolCalls {
			result := a.runTool(ctx, call)
			a.logger.DebugContext(ctx, "tool called",
				"session", sessionID, "tool", call.Function.Name, "result_bytes", len(result))
			history = append(history, llm.Message{Role: "tool", ToolCallID: call.ID, Content: result})
		}
	}
	if err := stream.Finish(); err != nil {
		return types.ChatResponse{}, err
	}

	turn, err := a.store.CompleteTurn(ctx, sessionID, user, reply.String(), found)
	if err != nil {
		return types.ChatResponse{}, fmt.Errorf("saving turn: %w", err)
	}
	a.logger.DebugContext(ctx, "turn completed",
		"session", sessionID, "turn", turn, "expressions", len(found), "reply_bytes", reply.Len())

	if err := onEvent(types.ChatEvent{Type: types.EventExpressions, Expressions: found}); err != nil {
		return types.ChatResponse{}, err
	}
	if err := onEvent(types.ChatEvent{Type: types.EventDone, TurnCount: turn}); err != nil {
		return types.ChatResponse{}, err
	}

	return types.ChatResponse{Message: reply.String(), Expressions: found, TurnCount: turn}, nil
}

// StartChat offers news headlines as conversation topics and adopts the
// first one as the session topic.
func (a *Agent) StartChat(ctx context.Context, sessionID string, onEvent EventFunc) ([]types.Topic, error) {
	if onEvent == nil {
		onEvent = func(types.ChatEvent) error { return nil }
	}

	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	topics := []types.Topic{}
	if a.topics != nil {
		bySource := a.topics.TopicsFromSources(ctx, nil, a.TopicsPerSource)
		for _, source := range a.topics.Sources() {
			topics = append(topics, bySource[source]...)
		}
	}

	if err := onEvent(types.ChatEvent{Type: types.EventTopics, Topics: topics}); err != nil {
		return nil, err
	}

	if len(topics) > 0 {
		if err := a.store.SetTopic(ctx, sessionID, topics[0].Headline); err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "topic selected", "session", sessionID, "topic", topics[0].Headline)
	}

	if err := onEvent(types.ChatEvent{Type: types.EventDone, TurnCount: sess.TurnCount}); err != nil {
		return nil, err
	}
	return topics, nil
}
