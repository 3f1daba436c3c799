package chat

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/infrastructure/logger"
	"health-companion/services/chat-gateway/internal/infrastructure/metrics"
	"health-companion/services/chat-gateway/internal/infrastructure/observability"
	"health-companion/services/chat-gateway/internal/worker"
)

// MaxMessageLen bounds an inbound chat message.
const MaxMessageLen = 10000

// RelayParams is the validated input of one relay request.
type RelayParams struct {
	UserID         string
	Message        string
	ConversationID string
}

// Sink receives relayed bytes. Flush must push buffered bytes to the
// caller so tokens appear as they arrive.
type Sink interface {
	io.Writer
	Flush()
}

// Service relays chat streams and drives the persistence side-channel.
type Service interface {
	// Relay forwards the upstream byte stream to sink unmodified while
	// tapping it for marker events. It returns before any bytes are
	// written only on validation or upstream-call failure.
	Relay(ctx context.Context, params RelayParams, sink Sink) error

	// History returns prior turns of a conversation for replay.
	History(ctx context.Context, userID, conversationID string) (*MessageList, error)
}

type service struct {
	upstream Upstream
	threads  thread.Service
	tasks    *worker.Runner
	log      zerolog.Logger
}

// NewService constructs the relay service.
func NewService(upstream Upstream, threads thread.Service, tasks *worker.Runner, log zerolog.Logger) Service {
	return &service{
		upstream: upstream,
		threads:  threads,
		tasks:    tasks,
		log:      logger.Component(log, "chat-relay"),
	}
}

func (s *service) Relay(ctx context.Context, params RelayParams, sink Sink) error {
	if err := validateRelayParams(params); err != nil {
		return err
	}

	body, err := s.upstream.ChatMessagesStream(ctx, UpstreamRequest{
		Query:          params.Message,
		UserID:         params.UserID,
		ConversationID: params.ConversationID,
	})
	if err != nil {
		metrics.RecordRelayStream("upstream_unreachable")
		return err
	}
	defer body.Close()

	tap := NewTap(s.log)
	tap.OnMessageEnd(func(ev StreamEvent) {
		// Fire-and-forget: the relay never blocks on storage and the
		// task outlives the request if the caller disconnects.
		s.spawnPersistence(params, ev.ConversationID, tap)
	})

	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, writeErr := sink.Write(chunk); writeErr != nil {
				// Caller went away; upstream read is torn down via ctx.
				metrics.RecordRelayStream("caller_disconnected")
				return fmt.Errorf("write to caller: %w", writeErr)
			}
			sink.Flush()
			metrics.RecordRelayBytes(n)
			tap.Feed(chunk)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Mid-stream upstream failure: whatever was relayed stays
			// relayed, the terminated connection is the caller's signal.
			metrics.RecordRelayStream("upstream_interrupted")
			return fmt.Errorf("read upstream stream: %w", readErr)
		}
	}
	tap.Close()

	if errEv := tap.ErrorEvent(); errEv != nil {
		metrics.RecordRelayStream("upstream_error")
		s.log.Warn().
			Str("code", errEv.Code).
			Str("message", errEv.Message).
			Str("conversation_id", tap.ConversationID()).
			Msg("upstream emitted error event")
		return nil
	}

	if tap.ConversationID() == "" {
		// Normal for the first turn of some upstream configurations.
		s.log.Debug().Msg("stream completed without conversation id, persistence skipped")
	}

	metrics.RecordRelayStream("ok")
	return nil
}

func (s *service) spawnPersistence(params RelayParams, conversationID string, tap *Tap) {
	answer := tap.Answer()
	userID := params.UserID
	message := params.Message

	s.tasks.Submit("thread-persist", func(taskCtx context.Context) {
		taskCtx, span := observability.StartPersistenceSpan(taskCtx, conversationID, "record_turn")
		defer span.End()

		_, err := s.threads.RecordTurn(taskCtx, thread.TurnParams{
			UserID:         userID,
			ConversationID: conversationID,
			UserMessage:    message,
			Answer:         answer,
		})
		if err != nil {
			// Persistence failures never reach the relayed response.
			observability.RecordError(span, err)
			s.log.Error().Err(err).
				Str("user_id", userID).
				Str("conversation_id", conversationID).
				Str("operation", "record_turn").
				Msg("thread persistence failed")
		}
	})
}

func (s *service) History(ctx context.Context, userID, conversationID string) (*MessageList, error) {
	if conversationID == "" {
		return nil, &ValidationError{Field: "conversation_id", Reason: "is required"}
	}
	if !thread.ValidConversationID(conversationID) {
		return nil, &ValidationError{Field: "conversation_id", Reason: "must be alphanumeric with hyphens, max 128 characters"}
	}
	return s.upstream.Messages(ctx, userID, conversationID)
}

func validateRelayParams(params RelayParams) error {
	if params.Message == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if len(params.Message) > MaxMessageLen {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxMessageLen)}
	}
	if params.ConversationID != "" && !thread.ValidConversationID(params.ConversationID) {
		return &ValidationError{Field: "conversationId", Reason: "must be alphanumeric with hyphens, max 128 characters"}
	}
	return nil
}
