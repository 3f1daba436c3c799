package chat

import (
	"context"
	"fmt"
	"io"
)

// Upstream event names as emitted by the AI backend's chat-messages stream.
const (
	EventMessage    = "message"
	EventMessageEnd = "message_end"
	EventError      = "error"
	EventPing       = "ping"
)

// StreamEvent is one tagged frame parsed off the upstream event stream.
// Events are transient: parsed, acted on, and discarded.
type StreamEvent struct {
	Event          string `json:"event"`
	TaskID         string `json:"task_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Answer         string `json:"answer,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`

	// Error variant fields.
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// UpstreamRequest describes one chat turn sent to the AI backend.
type UpstreamRequest struct {
	Query          string
	UserID         string
	ConversationID string
}

// Message is one prior turn returned by the upstream history API.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query,omitempty"`
	Answer         string `json:"answer,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// MessageList is the upstream history envelope, relayed as-is to callers.
type MessageList struct {
	Data    []Message `json:"data"`
	HasMore bool      `json:"has_more"`
	Limit   int       `json:"limit"`
}

// Upstream is the AI backend the relay forwards to.
type Upstream interface {
	// ChatMessagesStream opens a streaming chat completion. The returned
	// body carries SSE frames and must be closed by the caller.
	ChatMessagesStream(ctx context.Context, req UpstreamRequest) (io.ReadCloser, error)

	// Messages fetches prior turns for history replay.
	Messages(ctx context.Context, userID, conversationID string) (*MessageList, error)
}

// ValidationError reports a rejected relay input before any upstream call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
