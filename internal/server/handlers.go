// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/expression-learner/internal/agent"
	"github.com/pdiddy/expression-learner/internal/feeds"
	"github.com/pdiddy/expression-learner/internal/llm"
	"github.com/pdiddy/expression-learner/internal/sessions"
	"github.com/pdiddy/expression-learner/pkg/types"
)

const (
	serviceName        = "Expression Learner Agent"
	serviceDescription = "Conversational AI agent for learning English idioms and expressions"
	maxMessageChars    = 2000
	maxBodyBytes       = 64 << 10
	smokePrompt        = "Reply with the single word: ok"
)

// SessionStore is the session persistence the API reads and creates.
type SessionStore interface {
	Create(ctx context.Context, variant types.Variant) (types.Session, error)
	Get(ctx context.Context, id string) (types.Session, error)
	SearchExpressions(ctx context.Context, opts sessions.QueryOptions) ([]sessions.SearchResult, error)
}

// Chatter runs conversation turns. *agent.Agent satisfies it.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string, onEvent agent.EventFunc) (types.ChatResponse, error)
	StartChat(ctx context.Context, sessionID string, onEvent agent.EventFunc) ([]types.Topic, error)
}

// Completer answers a one-shot prompt. Used by the smoke check.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// TopicLister lists news headlines per source and manages the feed cache.
// *feeds.Client satisfies it.
type TopicLister interface {
	TopicsFromSources(ctx context.Context, sources []string, limitPerSource int) map[string][]types.Topic
	DefaultLimit() int
	CacheStats() feeds.CacheStats
	ClearCache()
}

// Handler holds the dependencies of the API endpoints.
type Handler struct {
	Store   SessionStore
	Agent   Chatter
	LLM     Completer
	Topics  TopicLister
	Version string
	Logger  *slog.Logger
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger().Warn("writing response failed", "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, errorBody{Detail: detail})
}

// decode reads a JSON request body into v, answering 422 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.sendError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// HandleRoot returns service metadata.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"service":     serviceName,
		"version":     h.Version,
		"description": serviceDescription,
		"status":      "running",
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type createSessionRequest struct {
	Variant types.Variant `json:"variant"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Variant   types.Variant `json:"variant"`
	CreatedAt time.Time     `json:"created_at"`
}

// HandleCreateSession starts a session in the requested English variant.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.Store.Create(r.Context(), req.Variant)
	if errors.Is(err, sessions.ErrInvalidVariant) {
		h.sendError(w, http.StatusBadRequest, "Invalid variant")
		return
	}
	if err != nil {
		h.logger().Error("creating session failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		Variant:   sess.Variant,
		CreatedAt: sess.CreatedAt,
	})
}

// HandleGetSession returns a session with its history.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

// lookup loads a session, answering 404 when it does not exist.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, id string) (types.Session, bool) {
	if id == "" {
		h.sendError(w, http.StatusUnprocessableEntity, "session_id is required")
		return types.Session{}, false
	}
	sess, err := h.Store.Get(r.Context(), id)
	if errors.Is(err, sessions.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "Session not found")
		return types.Session{}, false
	}
	if err != nil {
		h.logger().Error("loading session failed", "session", id, "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to load session")
		return types.Session{}, false
	}
	return sess, true
}

type startChatRequest struct {
	SessionID string `json:"session_id"`
}

// HandleStartChat streams topic suggestions for a session.
func (h *Handler) HandleStartChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, ok := h.lookup(w, r, req.SessionID); !ok {
		return
	}

	sse := newEventWriter(w)
	_, err := h.Agent.StartChat(r.Context(), req.SessionID, sse.send)
	if err != nil {
		h.streamError(r.Context(), sse, req.SessionID, err)
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HandleChat streams the assistant's reply to one user message.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if n := utf8.RuneCountInString(req.Message); n < 1 || n > maxMessageChars {
		h.sendError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("message must be between 1 and %d characters", maxMessageChars))
		return
	}
	if _, ok := h.lookup(w, r, req.SessionID); !ok {
		return
	}

	sse := newEventWriter(w)
	_, err := h.Agent.Chat(r.Context(), req.SessionID, req.Message, sse.send)
	if err != nil {
		h.streamError(r.Context(), sse, req.SessionID, err)
	}
}

// streamError reports a failure after the event stream has started.
func (h *Handler) streamError(ctx context.Context, sse *eventWriter, sessionID string, err error) {
	if ctx.Err() != nil || sse.failed {
		h.logger().Info("client went away", "session", sessionID, "error", err)
		return
	}

	_, detail := llm.Classify(err)
	if errors.Is(err, agent.ErrEmptyMessage) {
		detail = err.Error()
	}
	h.logger().Warn("chat turn failed", "session", sessionID, "error", err)
	_ = sse.send(types.ChatEvent{Type: types.EventError, Detail: detail})
}

// HandleSmoke sends a trivial prompt to the model to verify credentials
// and connectivity.
func (h *Handler) HandleSmoke(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	reply, err := h.LLM.Complete(ctx, []llm.Message{{Role: "user", Content: smokePrompt}})
	if err != nil {
		status, detail := llm.Classify(err)
		h.logger().Warn("smoke check failed", "status", status, "error", err)
		h.sendError(w, status, detail)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "response": reply})
}

// HandleExpressions searches learned expressions.
func (h *Handler) HandleExpressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := sessions.QueryOptions{
		Query:     q.Get("q"),
		SessionID: q.Get("session_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.sendError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		opts.MaxResults = n
	}

	results, err := h.Store.SearchExpressions(r.Context(), opts)
	if err != nil {
		h.logger().Error("searching expressions failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []sessions.SearchResult{}
	}
	h.writeJSON(w, http.StatusOK, results)
}

// HandleTopics lists headlines from the configured feeds, optionally
// restricted with repeated source parameters.
func (h *Handler) HandleTopics(w http.ResponseWriter, r *http.Request) {
	if h.Topics == nil {
		h.sendError(w, http.StatusServiceUnavailable, "topics unavailable")
		return
	}
	q := r.URL.Query()
	limit := h.Topics.DefaultLimit()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.sendError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sources := q["source"]
	h.writeJSON(w, http.StatusOK, h.Topics.TopicsFromSources(r.Context(), sources, limit))
}

// HandleTopicCache reports feed cache occupancy.
func (h *Handler) HandleTopicCache(w http.ResponseWriter, r *http.Request) {
	if h.Topics == nil {
		h.sendError(w, http.StatusServiceUnavailable, "topics unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, h.Topics.CacheStats())
}

// HandleClearTopicCache drops every cached feed so the next listing
// fetches fresh headlines.
func (h *Handler) HandleClearTopicCache(w http.ResponseWriter, r *http.Request) {
	if h.Topics == nil {
		h.sendError(w, http.StatusServiceUnavailable, "topics unavailable")
		return
	}
	h.Topics.ClearCache()
	h.logger().InfoContext(r.Context(), "feed cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
