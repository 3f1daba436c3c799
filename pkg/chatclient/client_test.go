package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sseHandler(t *testing.T, frames ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			flusher.Flush()
		}
	}
}

func messageFrame(answer string) string {
	return fmt.Sprintf("data: {\"event\":\"message\",\"answer\":%q}\n\n", answer)
}

func endFrame(conversationID string) string {
	return fmt.Sprintf("data: {\"event\":\"message_end\",\"conversation_id\":%q}\n\n", conversationID)
}

func newTestClient(baseURL string) *Client {
	return New(Config{BaseURL: baseURL, Logger: zerolog.Nop()})
}

func TestSendAccumulatesFragments(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		messageFrame("Hel"),
		messageFrame("lo "),
		messageFrame("world"),
		endFrame("conv-1"),
	))
	defer server.Close()

	client := newTestClient(server.URL)

	var observed []string
	answer, err := client.Send(context.Background(), "Hi", Handlers{
		OnAnswer: func(a string) { observed = append(observed, a) },
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if answer != "Hello world" {
		t.Errorf("answer = %q, want %q", answer, "Hello world")
	}
	want := []string{"Hel", "Hello ", "Hello world"}
	if len(observed) != len(want) {
		t.Fatalf("observed %d answer updates, want %d", len(observed), len(want))
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("update %d = %q, want cumulative %q", i, observed[i], want[i])
		}
	}
	if state := client.State(); state != StateCompleted {
		t.Errorf("state = %v, want completed", state)
	}
	if got := client.ConversationID(); got != "conv-1" {
		t.Errorf("ConversationID() = %q, want conv-1", got)
	}
}

func TestSendSignalsNewThreadOnce(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		messageFrame("hi"),
		endFrame("conv-1"),
		endFrame("conv-1"),
	))
	defer server.Close()

	client := newTestClient(server.URL)

	var created []string
	if _, err := client.Send(context.Background(), "Hi", Handlers{
		OnThreadCreated: func(id string) { created = append(created, id) },
	}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(created) != 1 || created[0] != "conv-1" {
		t.Errorf("OnThreadCreated fired %v, want exactly once with conv-1", created)
	}
}

func TestSecondTurnSendsTrackedConversationID(t *testing.T) {
	var bodies []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, endFrame("conv-1"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.Send(context.Background(), "Hi", Handlers{}); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if _, err := client.Send(context.Background(), "More", Handlers{}); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(bodies))
	}
	if _, ok := bodies[0]["conversationId"]; ok {
		t.Error("first turn carried a conversation id")
	}
	if bodies[1]["conversationId"] != "conv-1" {
		t.Errorf("second turn conversationId = %q, want conv-1", bodies[1]["conversationId"])
	}
}

func TestSendErrorEventStopsAccumulation(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		messageFrame("kept"),
		"data: {\"event\":\"error\",\"message\":\"quota exceeded\"}\n\n",
		messageFrame(" dropped"),
	))
	defer server.Close()

	client := newTestClient(server.URL)

	var surfaced string
	answer, err := client.Send(context.Background(), "Hi", Handlers{
		OnError: func(msg string) { surfaced = msg },
	})

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Send() error = %v, want StreamError", err)
	}
	if streamErr.Message != "quota exceeded" {
		t.Errorf("stream error = %q, want quota exceeded", streamErr.Message)
	}
	if surfaced != "quota exceeded" {
		t.Errorf("OnError received %q, want quota exceeded", surfaced)
	}
	if answer != "kept" {
		t.Errorf("answer = %q, want accumulation stopped at %q", answer, "kept")
	}
	if state := client.State(); state != StateErrored {
		t.Errorf("state = %v, want errored", state)
	}
}

func TestSendSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		messageFrame("ok"),
		"data: {\"event\":\"message\",\"answer\":\"trunc\n\n",
		messageFrame(" fine"),
		endFrame("conv-1"),
	))
	defer server.Close()

	client := newTestClient(server.URL)

	answer, err := client.Send(context.Background(), "Hi", Handlers{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if answer != "ok fine" {
		t.Errorf("answer = %q, want malformed line skipped", answer)
	}
}

func TestSendTruncatedStreamSurfacesError(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		messageFrame("Hel"),
	))
	defer server.Close()

	client := newTestClient(server.URL)

	answer, err := client.Send(context.Background(), "Hi", Handlers{})
	if !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("Send() error = %v, want ErrStreamTruncated", err)
	}
	if answer != "Hel" {
		t.Errorf("answer = %q, want the partial accumulation kept", answer)
	}
	if state := client.State(); state != StateErrored {
		t.Errorf("state = %v, want errored", state)
	}
	if got := client.ConversationID(); got != "" {
		t.Errorf("ConversationID() = %q, want empty after a truncated first turn", got)
	}
}

func TestSendErrorResponseBeforeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid message: is required"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Send(context.Background(), "", Handlers{})
	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want ErrorResponse", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.Status)
	}
	if apiErr.Message != "invalid message: is required" {
		t.Errorf("message = %q, want decoded error body", apiErr.Message)
	}
	if state := client.State(); state != StateErrored {
		t.Errorf("state = %v, want errored", state)
	}
}

func TestSendCancellationStopsConsumption(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, messageFrame("partial"))
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Send(ctx, "Hi", Handlers{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
	if got := client.ConversationID(); got != "" {
		t.Errorf("ConversationID() = %q, want unchanged after cancellation", got)
	}
}

func TestHistoryFetchesPriorTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/messages" {
			t.Errorf("path = %q, want /api/chat/messages", r.URL.Path)
		}
		if got := r.URL.Query().Get("conversation_id"); got != "conv-1" {
			t.Errorf("conversation_id = %q, want conv-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"m1","query":"Hi","answer":"Hello","created_at":1700000000}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	messages, err := client.History(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Answer != "Hello" {
		t.Errorf("History() = %+v, want one turn with answer Hello", messages)
	}
}

func TestStateStringNames(t *testing.T) {
	states := map[State]string{
		StateIdle:      "idle",
		StateSending:   "sending",
		StateStreaming: "streaming",
		StateCompleted: "completed",
		StateErrored:   "errored",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
