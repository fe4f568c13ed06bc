// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm streams chat completions from an Azure OpenAI deployment.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/expression-learner/internal/httputil"
	"github.com/pdiddy/expression-learner/pkg/types"
)

const (
	DefaultAPIVersion  = "2024-02-15-preview"
	defaultTimeout     = 2 * time.Minute
	defaultTemperature = 0.7
	maxErrorBody       = 4096
)

// ErrMissingConfig is returned when the endpoint, deployment or key is unset.
var ErrMissingConfig = errors.New("missing Azure OpenAI configuration")

// StatusError reports a non-200 response from the chat endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Azure OpenAI returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Message is one chat message sent to the model. Role is "system",
// "user", "assistant" or "tool". An assistant message may carry the tool
// calls it made; a tool message answers the call named by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Client calls the chat completions API of one deployment.
type Client struct {
	// HTTP is the client used for API requests.
	HTTP *http.Client

	endpoint    string
	deployment  string
	apiVersion  string
	apiKey      string
	userAgent   string
	temperature float64
	maxRetries  int
}

// NewClient validates cfg and returns a Client. It returns ErrMissingConfig
// when the endpoint, deployment or API key is empty.
func NewClient(cfg types.LLMConfig) (*Client, error) {
	var missing []string
	if cfg.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if cfg.Deployment == "" {
		missing = append(missing, "deployment")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "api key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	return &Client{
		HTTP:        &http.Client{Timeout: timeout},
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		deployment:  cfg.Deployment,
		apiVersion:  apiVersion,
		apiKey:      cfg.APIKey,
		userAgent:   cfg.UserAgent,
		temperature: temperature,
		maxRetries:  cfg.MaxRetries,
	}, nil
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream sends messages and reads the streamed reply. onDelta, if non-nil,
// receives each content fragment as it arrives; an error from onDelta aborts
// the stream. Stream returns the full reply text.
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(string) error) (string, error) {
	reply, err := c.StreamTools(ctx, messages, nil, onDelta)
	return reply.Content, err
}

// StreamTools is Stream with tools the model may call. Tool call fragments
// are assembled and returned in the Reply once the stream ends; content
// fragments go to onDelta as they arrive.
func (c *Client) StreamTools(ctx context.Context, messages []Message, tools []Tool, onDelta func(string) error) (Reply, error) {
	content, calls, err := c.stream(ctx, messages, tools, onDelta)
	return Reply{Content: content, ToolCalls: calls.calls()}, err
}

func (c *Client) stream(ctx context.Context, messages []Message, tools []Tool, onDelta func(string) error) (string, toolCallBuilder, error) {
	calls := toolCallBuilder{}
	body, err := json.Marshal(chatRequest{
		Messages:    messages,
		Tools:       tools,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", calls, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(body))
	if err != nil {
		return "", calls, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.maxRetries)
	if err != nil {
		return "", calls, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", calls, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), calls, fmt.Errorf("decoding stream chunk: %w", err)
		}
		// The first Azure chunk carries only content filter results.
		if len(chunk.Choices) == 0 {
			continue
		}

		for _, d := range chunk.Choices[0].Delta.ToolCalls {
			calls.add(d)
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), calls, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), calls, fmt.Errorf("reading stream: %w", err)
	}

	return full.String(), calls, nil
}

// Complete sends messages and returns the whole reply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	return c.Stream(ctx, messages, nil)
}

func (c *Client) chatURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, url.PathEscape(c.deployment), url.QueryEscape(c.apiVersion))
}

// Unconfigured stands in for a Client that could not be built. Every call
// fails with Err, so callers report the configuration problem per request.
type Unconfigured struct {
	Err error
}

func (u Unconfigured) Stream(context.Context, []Message, func(string) error) (string, error) {
	return "", u.Err
}

func (u Unconfigured) StreamTools(context.Context, []Message, []Tool, func(string) error) (Reply, error) {
	return Reply{}, u.Err
}

func (u Unconfigured) Complete(context.Context, []Message) (string, error) {
	return "", u.Err
}
