package thread

import (
	"context"
	"errors"
)

var (
	// ErrThreadNotFound indicates no thread matched the lookup.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrConversationExists indicates a create hit the uniqueness
	// constraint on (user_id, conversation_id).
	ErrConversationExists = errors.New("thread already exists for conversation")

	// ErrInvalidConversationID indicates a conversation id that does not
	// match the upstream identifier shape.
	ErrInvalidConversationID = errors.New("invalid conversation id")
)

// Repository persists thread records. Implementations must surface
// unique-violation failures on Create as ErrConversationExists so the
// service can fall back to an update under concurrent first turns.
type Repository interface {
	Create(ctx context.Context, thread *Thread) error
	FindByConversationID(ctx context.Context, userID, conversationID string) (*Thread, error)
	FindByPublicID(ctx context.Context, userID, publicID string) (*Thread, error)
	FindByUser(ctx context.Context, userID string, includeArchived bool) ([]*Thread, error)
	Update(ctx context.Context, thread *Thread) error
	// UpdatePreview writes only the last-message preview column, leaving
	// concurrent metadata edits on the same row intact.
	UpdatePreview(ctx context.Context, id uint, preview string) error
	Delete(ctx context.Context, userID, publicID string) error
}
