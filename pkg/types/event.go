package types

// ChatEventType names the kind of a streamed chat event.
type ChatEventType string

const (
	EventChunk       ChatEventType = "chunk"
	EventExpressions ChatEventType = "expressions"
	EventTopics      ChatEventType = "topics"
	EventDone        ChatEventType = "done"
	EventError       ChatEventType = "error"
)

// ChatEvent is one server-sent event emitted while a turn is in progress.
// Only the fields relevant to Type are set.
type ChatEvent struct {
	Type        ChatEventType `json:"type"`
	Content     string        `json:"content,omitempty"`
	Expressions []Expression  `json:"expressions,omitempty"`
	Topics      []Topic       `json:"topics,omitempty"`
	TurnCount   int           `json:"turn_count,omitempty"`
	Detail      string        `json:"detail,omitempty"`
}
