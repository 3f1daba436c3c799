package handlers

import (
	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/chat"
	"health-companion/services/chat-gateway/internal/domain/thread"
)

// Provider aggregates the HTTP handlers.
type Provider struct {
	Chat   *ChatHandler
	Thread *ThreadHandler
}

// NewProvider constructs all handlers.
func NewProvider(chatService chat.Service, threadService thread.Service, log zerolog.Logger) *Provider {
	return &Provider{
		Chat:   NewChatHandler(chatService, log),
		Thread: NewThreadHandler(threadService, log),
	}
}
