// Package chatclient consumes the chat gateway's streaming relay endpoint.
// It reconstructs the growing answer from partial-answer frames and tracks
// the upstream conversation identifier across turns.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// State describes where a turn is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

const (
	eventMessage    = "message"
	eventMessageEnd = "message_end"
	eventError      = "error"

	dataPrefix = "data:"
)

type streamFrame struct {
	Event          string `json:"event"`
	Answer         string `json:"answer,omitempty"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Handlers carries the optional callbacks fired while a turn streams.
// Nil callbacks are skipped.
type Handlers struct {
	// OnAnswer receives the cumulative answer text after each partial frame.
	OnAnswer func(answer string)
	// OnThreadCreated fires once when the first turn of a new conversation
	// learns its upstream conversation identifier.
	OnThreadCreated func(conversationID string)
	// OnError receives the upstream error message from an in-stream error event.
	OnError func(message string)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	StreamTimeout time.Duration
	Logger        zerolog.Logger
}

// Client talks to one chat gateway on behalf of one conversation.
// A Client is safe for concurrent reads of its state, but Send must not
// be called concurrently for the same Client.
type Client struct {
	baseURL string
	token   string
	rest    *resty.Client
	httpc   *http.Client
	log     zerolog.Logger

	mu             sync.Mutex
	state          State
	conversationID string
}

// ErrorResponse is the JSON error body returned before any stream bytes.
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat gateway error (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("chat gateway error (status %d): %s", e.Status, e.Message)
}

// StreamError is an in-stream error event surfaced after headers were committed.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "upstream stream error: " + e.Message
}

// ErrStreamTruncated reports a stream that ended before its message-end
// frame arrived. The accumulated answer may be incomplete.
var ErrStreamTruncated = errors.New("chat stream ended before message_end")

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 120 * time.Second
	}

	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)
	if cfg.Token != "" {
		rest.SetAuthToken(cfg.Token)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		rest:    rest,
		httpc:   &http.Client{Timeout: cfg.StreamTimeout},
		log:     cfg.Logger,
		state:   StateIdle,
	}
}

// State reports the lifecycle state of the most recent turn.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID reports the identifier that will be sent on the next turn.
// Empty until the first message-end frame carrying one arrives.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Send posts one chat turn and consumes the relayed stream to completion.
// It returns the full accumulated answer. Cancelling ctx aborts the read;
// the partially accumulated answer is discarded and no state is updated.
func (c *Client) Send(ctx context.Context, message string, h Handlers) (string, error) {
	c.setState(StateSending)

	body := map[string]string{"message": message}
	c.mu.Lock()
	if c.conversationID != "" {
		body["conversationId"] = c.conversationID
	}
	firstTurn := c.conversationID == ""
	c.mu.Unlock()

	payload, err := json.Marshal(body)
	if err != nil {
		c.setState(StateErrored)
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		c.setState(StateErrored)
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.setState(StateErrored)
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setState(StateErrored)
		return "", decodeErrorResponse(resp)
	}

	c.setState(StateStreaming)
	return c.consume(ctx, resp, firstTurn, h)
}

func (c *Client) consume(ctx context.Context, resp *http.Response, firstTurn bool, h Handlers) (string, error) {
	var (
		answer    strings.Builder
		streamErr *StreamError
		ended     bool
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		var frame streamFrame
		raw := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			c.log.Debug().Err(err).Msg("skipping malformed stream line")
			continue
		}

		switch frame.Event {
		case eventMessage:
			if streamErr != nil {
				continue
			}
			answer.WriteString(frame.Answer)
			if h.OnAnswer != nil {
				h.OnAnswer(answer.String())
			}
		case eventMessageEnd:
			ended = true
			if frame.ConversationID == "" {
				continue
			}
			c.mu.Lock()
			c.conversationID = frame.ConversationID
			c.mu.Unlock()
			if firstTurn && h.OnThreadCreated != nil {
				h.OnThreadCreated(frame.ConversationID)
				firstTurn = false
			}
		case eventError:
			streamErr = &StreamError{Message: frame.Message}
			if h.OnError != nil {
				h.OnError(frame.Message)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.setState(StateErrored)
		return answer.String(), fmt.Errorf("read chat stream: %w", err)
	}

	if streamErr != nil {
		c.setState(StateErrored)
		return answer.String(), streamErr
	}

	// A clean EOF without message_end means the relay was cut off.
	if !ended {
		c.setState(StateErrored)
		return answer.String(), ErrStreamTruncated
	}

	c.setState(StateCompleted)
	return answer.String(), nil
}

func decodeErrorResponse(resp *http.Response) error {
	apiErr := &ErrorResponse{Status: resp.StatusCode, Message: "unexpected response"}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	}
	return apiErr
}

// HistoryMessage is one prior turn returned by the message history endpoint.
type HistoryMessage struct {
	ID        string `json:"id"`
	Query     string `json:"query,omitempty"`
	Answer    string `json:"answer,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// History fetches prior turns for the given conversation.
func (c *Client) History(ctx context.Context, conversationID string) ([]HistoryMessage, error) {
	var out struct {
		Data []HistoryMessage `json:"data"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("conversation_id", conversationID).
		SetResult(&out).
		Get("/api/chat/messages")
	if err != nil {
		return nil, fmt.Errorf("fetch message history: %w", err)
	}
	if resp.IsError() {
		apiErr := &ErrorResponse{Status: resp.StatusCode(), Message: "unexpected response"}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if jerr := json.Unmarshal(resp.Body(), &payload); jerr == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return nil, apiErr
	}
	return out.Data, nil
}

// UpdateThreadPreview patches a thread's preview text. Failures are returned
// but callers typically treat them as non-fatal.
func (c *Client) UpdateThreadPreview(ctx context.Context, threadID, preview string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"lastMessagePreview": preview}).
		Patch("/api/threads/" + threadID)
	if err != nil {
		return fmt.Errorf("update thread preview: %w", err)
	}
	if resp.IsError() {
		return &ErrorResponse{Status: resp.StatusCode(), Message: strings.TrimSpace(string(resp.Body()))}
	}
	return nil
}
