package dto

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// CreateThreadRequest is the body of POST /api/threads.
type CreateThreadRequest struct {
	ConversationID string  `json:"conversationId" binding:"required"`
	Title          *string `json:"title"`
}

// UpdateThreadRequest is the body of PATCH /api/threads/:id.
type UpdateThreadRequest struct {
	Title              *string `json:"title"`
	LastMessagePreview *string `json:"lastMessagePreview"`
	Archived           *bool   `json:"archived"`
}
