package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/thread"
)

func testThread() *thread.Thread {
	title := "First chat"
	return &thread.Thread{
		PublicID:       "t-1",
		UserID:         "u1",
		ConversationID: "c1",
		Title:          &title,
		CreatedAt:      time.Now(),
	}
}

func TestNotifyThreadCreatedDeliversPayload(t *testing.T) {
	received := make(chan ThreadEventPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload ThreadEventPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, zerolog.Nop())

	if err := svc.NotifyThreadCreated(context.Background(), testThread()); err != nil {
		t.Fatalf("NotifyThreadCreated() error = %v", err)
	}

	payload := <-received
	if payload.Event != "thread.created" {
		t.Errorf("event = %q, want thread.created", payload.Event)
	}
	if payload.ThreadID != "t-1" || payload.ConversationID != "c1" {
		t.Errorf("payload = %+v, want thread t-1 / conversation c1", payload)
	}
}

func TestNotifyThreadCreatedSkipsWithoutURL(t *testing.T) {
	svc := NewHTTPService("", zerolog.Nop())

	if err := svc.NotifyThreadCreated(context.Background(), testThread()); err != nil {
		t.Errorf("NotifyThreadCreated() error = %v, want nil when no URL is configured", err)
	}
}

func TestNotifyThreadCreatedRetriesOnFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, zerolog.Nop())
	svc.policy.InitialDelay = 10 * time.Millisecond
	svc.policy.Jitter = 0

	if err := svc.NotifyThreadCreated(context.Background(), testThread()); err != nil {
		t.Fatalf("NotifyThreadCreated() error = %v, want success on third attempt", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestNotifyThreadCreatedGivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, zerolog.Nop())
	svc.policy.InitialDelay = 10 * time.Millisecond
	svc.policy.Jitter = 0

	if err := svc.NotifyThreadCreated(context.Background(), testThread()); err == nil {
		t.Error("NotifyThreadCreated() error = nil, want failure after exhausted retries")
	}
}
