// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"sort"
)

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the name, description and JSON Schema parameters of a
// callable function.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// NewTool returns a function tool. parameters is a JSON Schema object.
func NewTool(name, description, parameters string) Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(parameters),
		},
	}
}

// ToolCall is a function call requested by the model. Arguments is a JSON
// object encoded as a string.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Reply is a complete model response: text content, tool calls, or both.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// toolCallDelta is one streamed fragment of a tool call. The first fragment
// for an index carries the id and name; later ones append to arguments.
type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// toolCallBuilder assembles streamed tool call fragments by index.
type toolCallBuilder map[int]*ToolCall

func (b toolCallBuilder) add(d toolCallDelta) {
	call, ok := b[d.Index]
	if !ok {
		call = &ToolCall{Type: "function"}
		b[d.Index] = call
	}
	if d.ID != "" {
		call.ID = d.ID
	}
	if d.Type != "" {
		call.Type = d.Type
	}
	call.Function.Name += d.Function.Name
	call.Function.Arguments += d.Function.Arguments
}

func (b toolCallBuilder) calls() []ToolCall {
	if len(b) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(b))
	for i := range b {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *b[i])
	}
	return out
}
