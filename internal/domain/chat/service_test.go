package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/worker"
)

type mockUpstream struct {
	ChatMessagesStreamFn func(ctx context.Context, req UpstreamRequest) (io.ReadCloser, error)
	MessagesFn           func(ctx context.Context, userID, conversationID string) (*MessageList, error)
}

func (m *mockUpstream) ChatMessagesStream(ctx context.Context, req UpstreamRequest) (io.ReadCloser, error) {
	return m.ChatMessagesStreamFn(ctx, req)
}

func (m *mockUpstream) Messages(ctx context.Context, userID, conversationID string) (*MessageList, error) {
	return m.MessagesFn(ctx, userID, conversationID)
}

type mockThreads struct {
	RecordTurnFn func(ctx context.Context, params thread.TurnParams) (*thread.Thread, error)
}

func (m *mockThreads) RecordTurn(ctx context.Context, params thread.TurnParams) (*thread.Thread, error) {
	if m.RecordTurnFn != nil {
		return m.RecordTurnFn(ctx, params)
	}
	return &thread.Thread{}, nil
}

func (m *mockThreads) List(context.Context, string, bool) ([]*thread.Thread, error) {
	return nil, nil
}
func (m *mockThreads) Get(context.Context, string, string) (*thread.Thread, error) { return nil, nil }
func (m *mockThreads) Create(context.Context, string, thread.CreateParams) (*thread.Thread, error) {
	return nil, nil
}
func (m *mockThreads) Update(context.Context, string, string, thread.UpdateParams) (*thread.Thread, error) {
	return nil, nil
}
func (m *mockThreads) Archive(context.Context, string, string) (*thread.Thread, error) {
	return nil, nil
}
func (m *mockThreads) Delete(context.Context, string, string) error { return nil }

type captureSink struct {
	bytes.Buffer
	flushes int
}

func (s *captureSink) Flush() { s.flushes++ }

func upstreamFromStream(stream string) *mockUpstream {
	return &mockUpstream{
		ChatMessagesStreamFn: func(context.Context, UpstreamRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(stream)), nil
		},
	}
}

func newTestService(upstream Upstream, threads thread.Service) (Service, *worker.Runner) {
	runner := worker.NewRunner(time.Second, zerolog.Nop())
	return NewService(upstream, threads, runner, zerolog.Nop()), runner
}

func TestRelayRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		params RelayParams
		field  string
	}{
		{
			name:   "empty message",
			params: RelayParams{UserID: "u1"},
			field:  "message",
		},
		{
			name:   "message too long",
			params: RelayParams{UserID: "u1", Message: strings.Repeat("a", MaxMessageLen+1)},
			field:  "message",
		},
		{
			name:   "conversation id with invalid characters",
			params: RelayParams{UserID: "u1", Message: "hi", ConversationID: "bad id!"},
			field:  "conversationId",
		},
		{
			name:   "conversation id too long",
			params: RelayParams{UserID: "u1", Message: "hi", ConversationID: strings.Repeat("c", 129)},
			field:  "conversationId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			upstream := &mockUpstream{
				ChatMessagesStreamFn: func(context.Context, UpstreamRequest) (io.ReadCloser, error) {
					called = true
					return nil, nil
				},
			}
			svc, runner := newTestService(upstream, &mockThreads{})
			defer runner.Drain()

			sink := &captureSink{}
			err := svc.Relay(context.Background(), tt.params, sink)

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Relay() error = %v, want ValidationError", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("validation field = %q, want %q", validationErr.Field, tt.field)
			}
			if called {
				t.Error("upstream was called despite invalid input")
			}
			if sink.Len() != 0 {
				t.Error("bytes were written despite invalid input")
			}
		})
	}
}

func TestRelayCopiesStreamByteExact(t *testing.T) {
	stream := frame(t, StreamEvent{Event: EventMessage, Answer: "Hello"}) +
		": keep-alive comment\n" +
		frame(t, StreamEvent{Event: EventMessageEnd, ConversationID: "c1"})

	svc, runner := newTestService(upstreamFromStream(stream), &mockThreads{})
	defer runner.Drain()

	sink := &captureSink{}
	if err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if got := sink.String(); got != stream {
		t.Errorf("relayed bytes = %q, want exact copy %q", got, stream)
	}
	if sink.flushes == 0 {
		t.Error("sink was never flushed")
	}
}

func TestRelayTriggersCreateForFirstTurn(t *testing.T) {
	stream := frame(t, StreamEvent{Event: EventMessage, Answer: "Hello"}) +
		frame(t, StreamEvent{Event: EventMessageEnd, ConversationID: "c1"})

	recorded := make(chan thread.TurnParams, 2)
	threads := &mockThreads{
		RecordTurnFn: func(_ context.Context, params thread.TurnParams) (*thread.Thread, error) {
			recorded <- params
			return &thread.Thread{ConversationID: params.ConversationID}, nil
		},
	}

	svc, runner := newTestService(upstreamFromStream(stream), threads)

	sink := &captureSink{}
	if err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	runner.Drain()

	select {
	case params := <-recorded:
		if params.UserID != "u1" {
			t.Errorf("UserID = %q, want u1", params.UserID)
		}
		if params.ConversationID != "c1" {
			t.Errorf("ConversationID = %q, want c1", params.ConversationID)
		}
		if params.UserMessage != "Hi" {
			t.Errorf("UserMessage = %q, want Hi", params.UserMessage)
		}
		if params.Answer != "Hello" {
			t.Errorf("Answer = %q, want Hello", params.Answer)
		}
	default:
		t.Fatal("persistence was never triggered")
	}

	select {
	case <-recorded:
		t.Fatal("persistence was triggered more than once")
	default:
	}
}

func TestRelayWithoutConversationIDSkipsPersistence(t *testing.T) {
	stream := frame(t, StreamEvent{Event: EventMessage, Answer: "Hello"}) +
		frame(t, StreamEvent{Event: EventMessageEnd})

	recorded := make(chan thread.TurnParams, 1)
	threads := &mockThreads{
		RecordTurnFn: func(_ context.Context, params thread.TurnParams) (*thread.Thread, error) {
			recorded <- params
			return &thread.Thread{}, nil
		},
	}

	svc, runner := newTestService(upstreamFromStream(stream), threads)

	sink := &captureSink{}
	if err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	runner.Drain()

	select {
	case <-recorded:
		t.Fatal("persistence triggered without a conversation id")
	default:
	}
	if got := sink.String(); got != stream {
		t.Errorf("relayed bytes = %q, want exact copy", got)
	}
}

func TestRelayStorageFailureDoesNotAffectStream(t *testing.T) {
	stream := frame(t, StreamEvent{Event: EventMessage, Answer: "Hello"}) +
		frame(t, StreamEvent{Event: EventMessageEnd, ConversationID: "c1"})

	threads := &mockThreads{
		RecordTurnFn: func(context.Context, thread.TurnParams) (*thread.Thread, error) {
			return nil, errors.New("database unavailable")
		},
	}

	svc, runner := newTestService(upstreamFromStream(stream), threads)

	sink := &captureSink{}
	err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink)
	runner.Drain()

	if err != nil {
		t.Errorf("Relay() error = %v, want nil despite storage failure", err)
	}
	if got := sink.String(); got != stream {
		t.Errorf("relayed bytes = %q, want exact copy despite storage failure", got)
	}
}

func TestRelayUpstreamErrorEventSkipsPersistence(t *testing.T) {
	stream := frame(t, StreamEvent{Event: EventMessage, Answer: "partial"}) +
		frame(t, StreamEvent{Event: EventError, Code: "internal", Message: "backend exploded"})

	recorded := make(chan thread.TurnParams, 1)
	threads := &mockThreads{
		RecordTurnFn: func(_ context.Context, params thread.TurnParams) (*thread.Thread, error) {
			recorded <- params
			return &thread.Thread{}, nil
		},
	}

	svc, runner := newTestService(upstreamFromStream(stream), threads)

	sink := &captureSink{}
	err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink)
	runner.Drain()

	if err != nil {
		t.Errorf("Relay() error = %v, want nil for in-stream error event", err)
	}
	if got := sink.String(); got != stream {
		t.Errorf("relayed bytes = %q, want exact copy including error frame", got)
	}
	select {
	case <-recorded:
		t.Fatal("persistence triggered for an errored stream")
	default:
	}
}

func TestRelayUpstreamUnreachable(t *testing.T) {
	wantErr := errors.New("connection refused")
	upstream := &mockUpstream{
		ChatMessagesStreamFn: func(context.Context, UpstreamRequest) (io.ReadCloser, error) {
			return nil, wantErr
		},
	}

	svc, runner := newTestService(upstream, &mockThreads{})
	defer runner.Drain()

	sink := &captureSink{}
	err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink)
	if !errors.Is(err, wantErr) {
		t.Errorf("Relay() error = %v, want %v", err, wantErr)
	}
	if sink.Len() != 0 {
		t.Error("bytes were written for an unreachable upstream")
	}
}

type interruptedReader struct {
	data []byte
	read bool
}

func (r *interruptedReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, errors.New("connection reset")
}

func (r *interruptedReader) Close() error { return nil }

func TestRelayMidStreamInterruptionKeepsSentBytes(t *testing.T) {
	partial := frame(t, StreamEvent{Event: EventMessage, Answer: "Hel"})
	upstream := &mockUpstream{
		ChatMessagesStreamFn: func(context.Context, UpstreamRequest) (io.ReadCloser, error) {
			return &interruptedReader{data: []byte(partial)}, nil
		},
	}

	svc, runner := newTestService(upstream, &mockThreads{})
	defer runner.Drain()

	sink := &captureSink{}
	err := svc.Relay(context.Background(), RelayParams{UserID: "u1", Message: "Hi"}, sink)
	if err == nil {
		t.Fatal("Relay() error = nil, want mid-stream failure")
	}
	if got := sink.String(); got != partial {
		t.Errorf("relayed bytes = %q, want the partial prefix %q", got, partial)
	}
}

func TestHistoryValidatesConversationID(t *testing.T) {
	svc, runner := newTestService(&mockUpstream{}, &mockThreads{})
	defer runner.Drain()

	_, err := svc.History(context.Background(), "u1", "")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("History() error = %v, want ValidationError", err)
	}

	_, err = svc.History(context.Background(), "u1", "not valid!")
	if !errors.As(err, &validationErr) {
		t.Fatalf("History() error = %v, want ValidationError", err)
	}
}

func TestHistoryProxiesUpstream(t *testing.T) {
	want := &MessageList{Data: []Message{{ID: "m1", Query: "Hi", Answer: "Hello"}}}
	upstream := &mockUpstream{
		MessagesFn: func(_ context.Context, userID, conversationID string) (*MessageList, error) {
			if userID != "u1" || conversationID != "c1" {
				t.Errorf("Messages(%q, %q), want (u1, c1)", userID, conversationID)
			}
			return want, nil
		},
	}

	svc, runner := newTestService(upstream, &mockThreads{})
	defer runner.Drain()

	got, err := svc.History(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got != want {
		t.Errorf("History() = %+v, want upstream list", got)
	}
}
