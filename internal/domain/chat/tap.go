package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/infrastructure/logger"
	"health-companion/services/chat-gateway/internal/infrastructure/metrics"
)

const dataPrefix = "data:"

// Tap scans the relayed byte stream for upstream events. It buffers at
// most one incomplete trailing line across chunks; relayed bytes are
// never altered or reordered by the tap.
type Tap struct {
	log     zerolog.Logger
	pending []byte

	answer         strings.Builder
	conversationID string
	messageID      string
	errored        bool
	errEvent       *StreamEvent

	// onMessageEnd fires at most once, when a message_end frame carrying
	// a non-empty conversation id is observed.
	onMessageEnd func(ev StreamEvent)
	endFired     bool
}

// NewTap builds a tap over the relayed stream.
func NewTap(log zerolog.Logger) *Tap {
	return &Tap{log: logger.Component(log, "stream-tap")}
}

// OnMessageEnd registers the completion trigger.
func (t *Tap) OnMessageEnd(fn func(ev StreamEvent)) {
	t.onMessageEnd = fn
}

// Feed scans one relayed chunk for complete lines.
func (t *Tap) Feed(chunk []byte) {
	t.pending = append(t.pending, chunk...)
	for {
		idx := bytes.IndexByte(t.pending, '\n')
		if idx < 0 {
			return
		}
		line := t.pending[:idx]
		t.pending = t.pending[idx+1:]
		t.scanLine(line)
	}
}

// Close flushes a trailing partial line, if any.
func (t *Tap) Close() {
	if len(t.pending) > 0 {
		t.scanLine(t.pending)
		t.pending = nil
	}
}

// Answer returns the accumulated answer text.
func (t *Tap) Answer() string {
	return t.answer.String()
}

// ConversationID returns the upstream conversation id, if any was seen.
func (t *Tap) ConversationID() string {
	return t.conversationID
}

// MessageID returns the upstream message id from the message_end frame.
func (t *Tap) MessageID() string {
	return t.messageID
}

// ErrorEvent returns the in-stream error frame, if one was observed.
func (t *Tap) ErrorEvent() *StreamEvent {
	return t.errEvent
}

func (t *Tap) scanLine(raw []byte) {
	line := strings.TrimSpace(string(raw))
	if line == "" || strings.HasPrefix(line, ":") {
		return
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == "" {
		return
	}

	var ev StreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		// A malformed frame must never break the relayed stream.
		t.log.Warn().Err(err).Str("line", truncateForLog(data)).Msg("skipping malformed stream line")
		return
	}

	metrics.RecordStreamEvent(ev.Event)

	switch ev.Event {
	case EventMessage:
		if t.conversationID == "" && ev.ConversationID != "" {
			t.conversationID = ev.ConversationID
		}
		if !t.errored {
			t.answer.WriteString(ev.Answer)
		}
	case EventMessageEnd:
		if t.conversationID == "" && ev.ConversationID != "" {
			t.conversationID = ev.ConversationID
		}
		if ev.MessageID != "" {
			t.messageID = ev.MessageID
		}
		if ev.ConversationID != "" && !t.endFired && t.onMessageEnd != nil {
			t.endFired = true
			t.onMessageEnd(ev)
		}
	case EventError:
		t.errored = true
		evCopy := ev
		t.errEvent = &evCopy
	case EventPing:
		// Keep-alive, relayed but otherwise ignored.
	}
}

func truncateForLog(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
