package entities

import (
	"time"

	"gorm.io/datatypes"

	"health-companion/services/chat-gateway/internal/domain/thread"
)

// Thread represents the database schema for conversation threads.
type Thread struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID           string            `gorm:"type:varchar(50);uniqueIndex;not null"`
	UserID             string            `gorm:"type:varchar(64);uniqueIndex:idx_thread_user_conversation;index:idx_thread_user_updated_at;not null"`
	ConversationID     string            `gorm:"type:varchar(128);uniqueIndex:idx_thread_user_conversation;not null"`
	Title              *string           `gorm:"type:varchar(256)"`
	LastMessagePreview *string           `gorm:"type:varchar(256)"`
	Archived           bool              `gorm:"not null;default:false"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb"`
}

// TableName specifies the table name for Thread.
func (Thread) TableName() string {
	return "threads"
}

// EtoD converts database entity to domain model
func (t *Thread) EtoD() *thread.Thread {
	return &thread.Thread{
		ID:                 t.ID,
		PublicID:           t.PublicID,
		UserID:             t.UserID,
		ConversationID:     t.ConversationID,
		Title:              t.Title,
		LastMessagePreview: t.LastMessagePreview,
		Archived:           t.Archived,
		Metadata:           t.Metadata,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// NewSchemaThread creates a database entity from domain model
func NewSchemaThread(t *thread.Thread) *Thread {
	return &Thread{
		ID:                 t.ID,
		PublicID:           t.PublicID,
		UserID:             t.UserID,
		ConversationID:     t.ConversationID,
		Title:              t.Title,
		LastMessagePreview: t.LastMessagePreview,
		Archived:           t.Archived,
		Metadata:           datatypes.JSONMap(t.Metadata),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}
