package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/infrastructure/logger"
	"health-companion/services/chat-gateway/internal/utils/backoff"
)

// HTTPService posts thread lifecycle events to a configured URL.
// Delivery is best-effort with bounded retries; a missing URL disables
// notifications entirely.
type HTTPService struct {
	httpClient *http.Client
	webhookURL string
	log        zerolog.Logger
	policy     backoff.Policy
}

// NewHTTPService creates a new HTTP-based thread event notifier.
func NewHTTPService(webhookURL string, log zerolog.Logger) *HTTPService {
	return &HTTPService{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		webhookURL: webhookURL,
		log:        logger.Component(log, "webhook"),
		policy:     backoff.Default(),
	}
}

// NotifyThreadCreated sends a webhook notification for a new thread.
func (s *HTTPService) NotifyThreadCreated(ctx context.Context, t *thread.Thread) error {
	if s.webhookURL == "" {
		s.log.Debug().Str("thread_id", t.PublicID).Msg("no webhook URL configured, skipping notification")
		return nil
	}
	return s.send(ctx, newThreadCreatedPayload(t))
}

func (s *HTTPService) send(ctx context.Context, payload ThreadEventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	attempt := 0
	err = backoff.Do(ctx, s.policy, func(ctx context.Context) error {
		attempt++

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return fmt.Errorf("create webhook request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := s.httpClient.Do(req)
		if doErr != nil {
			s.logAttemptFailure(doErr, attempt, payload.Event)
			return doErr
		}
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("webhook returned status %d", resp.StatusCode)
			s.logAttemptFailure(statusErr, attempt, payload.Event)
			return statusErr
		}

		s.log.Debug().
			Str("event", payload.Event).
			Str("thread_id", payload.ThreadID).
			Msg("webhook delivered")
		return nil
	})
	if err != nil {
		return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempt, err)
	}
	return nil
}

func (s *HTTPService) logAttemptFailure(err error, attempt int, event string) {
	s.log.Warn().Err(err).
		Int("attempt", attempt).
		Str("event", event).
		Msg("webhook delivery failed")
}

// Ensure interface compliance.
var _ thread.Notifier = (*HTTPService)(nil)
