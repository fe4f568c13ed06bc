// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/expression-learner/pkg/types"
)

func sseBody(deltas ...string) string {
	var b strings.Builder
	// Azure sends a prompt filter chunk with no choices first.
	b.WriteString(`data: {"choices":[],"prompt_filter_results":[]}` + "\n\n")
	for _, d := range deltas {
		chunk, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": d}}},
		})
		fmt.Fprintf(&b, "data: %s\n\n", chunk)
	}
	b.WriteString(`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}` + "\n\n")
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(types.LLMConfig{
		Endpoint:   url + "/",
		Deployment: "gpt-4o",
		APIKey:     "test-key",
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.LLMConfig
		missing string
	}{
		{"all", types.LLMConfig{}, "endpoint, deployment, api key"},
		{"key", types.LLMConfig{Endpoint: "https://x", Deployment: "d"}, "api key"},
		{"endpoint", types.LLMConfig{Deployment: "d", APIKey: "k"}, "endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			require.ErrorIs(t, err, ErrMissingConfig)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestStream(t *testing.T) {
	var got struct {
		path, query, key string
		body             chatRequest
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.Query().Get("api-version")
		got.key = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody("It's ", "a [[piece of", " cake::very easy]]", "."))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	var deltas []string
	full, err := c.Stream(context.Background(), []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "It's a [[piece of cake::very easy]].", full)
	assert.Equal(t, []string{"It's ", "a [[piece of", " cake::very easy]]", "."}, deltas)
	assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", got.path)
	assert.Equal(t, DefaultAPIVersion, got.query)
	assert.Equal(t, "test-key", got.key)
	assert.True(t, got.body.Stream)
	assert.Len(t, got.body.Messages, 2)
	assert.InDelta(t, defaultTemperature, got.body.Temperature, 1e-9)
}

func TestStream_CallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody("one", "two", "three"))
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	full, err := testClient(t, srv.URL).Stream(context.Background(), nil, func(string) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "onetwo", full)
}

func TestStream_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"401"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "401")
}

func TestStream_MalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding stream chunk")
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ": keep-alive\n\n"+sseBody("Hello", " world"))
	}))
	defer srv.Close()

	out, err := testClient(t, srv.URL).Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"missing config", fmt.Errorf("%w: api key", ErrMissingConfig), 401, "Azure OpenAI configuration missing"},
		{"unauthorized", &StatusError{StatusCode: 401}, 401, "Azure OpenAI authentication failed"},
		{"forbidden", fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 403}), 403, "Azure OpenAI permission denied"},
		{"deadline", context.DeadlineExceeded, 504, "Azure OpenAI request timed out"},
		{"net timeout", timeoutErr{}, 504, "Azure OpenAI request timed out"},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, 502, "Azure OpenAI network error"},
		{"server error", &StatusError{StatusCode: 500}, 503, "LLM unavailable"},
		{"other", errors.New("boom"), 503, "LLM unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.detail, detail)
		})
	}
}

func TestClassify_ClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.HTTP.Timeout = 20 * time.Millisecond
	_, err := c.Complete(context.Background(), nil)
	require.Error(t, err)
	status, _ := Classify(err)
	assert.Equal(t, http.StatusGatewayTimeout, status)
}

func TestStreamTools(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[],"prompt_filter_results":[]}`,
			`{"choices":[{"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"list_topics","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"feed_url\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_2","type":"function","function":{"name":"get_article_snippet","arguments":"{\"url\":\"https://bbc.com/1\"}"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"https://bbc.com/rss\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	tools := []Tool{NewTool("list_topics", "List headlines.", `{"type":"object","properties":{"feed_url":{"type":"string"}}}`)}
	deltas := 0
	reply, err := testClient(t, srv.URL).StreamTools(context.Background(), []Message{
		{Role: "user", Content: "news?"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_0", Type: "function", Function: ToolCallFunction{Name: "list_topics", Arguments: "{}"}}}},
		{Role: "tool", ToolCallID: "call_0", Content: "Markets rally (BBC News)"},
	}, tools, func(string) error {
		deltas++
		return nil
	})
	require.NoError(t, err)

	assert.Empty(t, reply.Content)
	assert.Zero(t, deltas)
	require.Len(t, reply.ToolCalls, 2)
	assert.Equal(t, ToolCall{ID: "call_1", Type: "function", Function: ToolCallFunction{
		Name: "list_topics", Arguments: `{"feed_url":"https://bbc.com/rss"}`,
	}}, reply.ToolCalls[0])
	assert.Equal(t, "get_article_snippet", reply.ToolCalls[1].Function.Name)
	assert.Equal(t, `{"url":"https://bbc.com/1"}`, reply.ToolCalls[1].Function.Arguments)

	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "list_topics", got.Tools[0].Function.Name)
	assert.JSONEq(t, `{"type":"object","properties":{"feed_url":{"type":"string"}}}`, string(got.Tools[0].Function.Parameters))
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "call_0", got.Messages[1].ToolCalls[0].ID)
	assert.Equal(t, "call_0", got.Messages[2].ToolCallID)
}

func TestStream_OmitsToolsWhenNone(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		fmt.Fprint(w, sseBody("ok"))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.NotContains(t, raw, "tools")
	msg := raw["messages"].([]any)[0].(map[string]any)
	assert.NotContains(t, msg, "tool_calls")
	assert.NotContains(t, msg, "tool_call_id")
}
