package thread

import (
	"regexp"
	"strings"
	"time"
)

const (
	// TitleMaxLen bounds the title derived from the first user message.
	TitleMaxLen = 50
	// PreviewMaxLen bounds the preview derived from the latest answer.
	PreviewMaxLen = 100

	// DefaultTitle is used when the first user message is empty after trimming.
	DefaultTitle = "New Conversation"
)

// Thread is the locally persisted record of one upstream conversation.
// At most one Thread exists per (UserID, ConversationID) pair; the
// database uniqueness constraint is the source of truth for that.
type Thread struct {
	ID                 uint           `json:"-"`
	PublicID           string         `json:"id"`
	UserID             string         `json:"-"`
	ConversationID     string         `json:"conversation_id"`
	Title              *string        `json:"title,omitempty"`
	LastMessagePreview *string        `json:"last_message_preview,omitempty"`
	Archived           bool           `json:"archived"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Upstream conversation ids are opaque but bounded: alphanumerics and
// hyphens, at most 128 characters.
var conversationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,128}$`)

// ValidConversationID reports whether id matches the upstream identifier shape.
func ValidConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}

// TitleFromMessage derives a thread title from the first user message.
func TitleFromMessage(message string) string {
	title := truncateRunes(strings.TrimSpace(message), TitleMaxLen)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// PreviewFromAnswer derives the last-message preview from the latest answer.
func PreviewFromAnswer(answer string) string {
	return truncateRunes(strings.TrimSpace(answer), PreviewMaxLen)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
