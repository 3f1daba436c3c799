package webhook

import (
	"time"

	"health-companion/services/chat-gateway/internal/domain/thread"
)

// ThreadEventPayload is the structure sent to the configured webhook URL.
type ThreadEventPayload struct {
	Event          string    `json:"event"` // "thread.created"
	ThreadID       string    `json:"thread_id"`
	ConversationID string    `json:"conversation_id"`
	Title          *string   `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func newThreadCreatedPayload(t *thread.Thread) ThreadEventPayload {
	return ThreadEventPayload{
		Event:          "thread.created",
		ThreadID:       t.PublicID,
		ConversationID: t.ConversationID,
		Title:          t.Title,
		CreatedAt:      t.CreatedAt,
	}
}
