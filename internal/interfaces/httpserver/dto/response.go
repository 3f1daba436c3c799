package dto

import (
	"time"

	"health-companion/services/chat-gateway/internal/domain/thread"
)

// ThreadPayload is the wire shape of a thread record.
type ThreadPayload struct {
	ID                 string    `json:"id"`
	ConversationID     string    `json:"conversation_id"`
	Title              *string   `json:"title,omitempty"`
	LastMessagePreview *string   `json:"last_message_preview,omitempty"`
	Archived           bool      `json:"archived"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ThreadFromDomain maps the domain model to its wire shape.
func ThreadFromDomain(t *thread.Thread) ThreadPayload {
	return ThreadPayload{
		ID:                 t.PublicID,
		ConversationID:     t.ConversationID,
		Title:              t.Title,
		LastMessagePreview: t.LastMessagePreview,
		Archived:           t.Archived,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// ThreadListResponse is the envelope of GET /api/threads.
type ThreadListResponse struct {
	Threads []ThreadPayload `json:"threads"`
	Count   int             `json:"count"`
}

// ThreadListFromDomain maps a thread listing to its wire shape.
func ThreadListFromDomain(threads []*thread.Thread) ThreadListResponse {
	payloads := make([]ThreadPayload, len(threads))
	for i, t := range threads {
		payloads[i] = ThreadFromDomain(t)
	}
	return ThreadListResponse{Threads: payloads, Count: len(payloads)}
}
