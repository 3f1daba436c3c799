package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/chat"
	"health-companion/services/chat-gateway/internal/infrastructure/auth"
	"health-companion/services/chat-gateway/internal/infrastructure/dify"
	"health-companion/services/chat-gateway/internal/infrastructure/observability"
	"health-companion/services/chat-gateway/internal/interfaces/httpserver/dto"
)

// ChatHandler exposes HTTP entrypoints for the streaming chat relay.
type ChatHandler struct {
	service chat.Service
	log     zerolog.Logger
}

// NewChatHandler constructs the handler.
func NewChatHandler(service chat.Service, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		log:     log.With().Str("handler", "chat").Logger(),
	}
}

// Create handles POST /api/chat
// @Summary Relay a chat message
// @Description Forwards the message to the AI backend and relays its event stream back unmodified.
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param request body dto.ChatRequest true "Chat request"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} map[string]string
// @Router /api/chat [post]
func (h *ChatHandler) Create(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	userID := userIDFrom(c)

	ctx, span := observability.StartRelaySpan(c.Request.Context(), userID, req.ConversationID)
	defer span.End()

	sink := newStreamSink(c.Writer, flusher)
	err := h.service.Relay(ctx, chat.RelayParams{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	}, sink)
	if err == nil {
		return
	}

	observability.RecordError(span, err)

	if sink.Started() {
		// Headers are committed; tear the connection down before the
		// terminating chunk so the caller observes the truncation.
		h.log.Warn().Err(err).Msg("relay interrupted mid-stream, aborting connection")
		abortStream(c)
		return
	}

	var validationErr *chat.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
		return
	}

	var apiErr *dify.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	h.log.Error().Err(err).Msg("relay failed before streaming")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "AI service temporarily unavailable"})
}

// Messages handles GET /api/chat/messages
// @Summary Fetch conversation history
// @Tags Chat
// @Produce json
// @Param conversation_id query string true "Upstream conversation ID"
// @Success 200 {object} chat.MessageList
// @Failure 400 {object} map[string]string
// @Router /api/chat/messages [get]
func (h *ChatHandler) Messages(c *gin.Context) {
	conversationID := c.Query("conversation_id")

	list, err := h.service.History(c.Request.Context(), userIDFrom(c), conversationID)
	if err != nil {
		var validationErr *chat.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}

		var apiErr *dify.APIError
		if errors.As(err, &apiErr) {
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			return
		}

		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("history fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// abortStream closes the underlying connection without the final chunk,
// so a truncated relay never reads like a complete stream.
func abortStream(c *gin.Context) {
	hijacker, ok := c.Writer.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}

func userIDFrom(c *gin.Context) string {
	if sub := auth.Subject(c); sub != "" {
		return sub
	}
	return "guest"
}

// streamSink adapts the gin response writer to the relay's sink. SSE
// headers are committed on the first relayed byte so pre-stream failures
// can still produce a JSON error response.
type streamSink struct {
	writer  gin.ResponseWriter
	flusher http.Flusher
	started bool
}

func newStreamSink(w gin.ResponseWriter, flusher http.Flusher) *streamSink {
	return &streamSink{writer: w, flusher: flusher}
}

func (s *streamSink) Write(p []byte) (int, error) {
	if !s.started {
		header := s.writer.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		s.writer.WriteHeader(http.StatusOK)
		s.started = true
	}
	return s.writer.Write(p)
}

func (s *streamSink) Flush() {
	if s.started {
		s.flusher.Flush()
	}
}

// Started reports whether any bytes were relayed to the caller.
func (s *streamSink) Started() bool {
	return s.started
}

// Ensure interface compliance.
var _ chat.Sink = (*streamSink)(nil)
