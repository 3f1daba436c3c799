package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"health-companion/services/chat-gateway/internal/domain/chat"
)

// APIError is a non-2xx response from the upstream AI backend.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dify api error: %d %s %s", e.Status, e.Code, e.Message)
}

// Config controls upstream connectivity.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	StreamTimeout time.Duration
}

// Client implements the chat.Upstream interface against a
// Dify-compatible chat-messages API.
type Client struct {
	httpClient   *resty.Client
	streamClient *http.Client
	baseURL      string
	apiKey       string
}

// NewClient creates a Resty-backed client. Streaming requests use a raw
// http.Client so the response body can be relayed incrementally.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = 120 * time.Second
	}

	return &Client{
		httpClient: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetAuthToken(cfg.APIKey).
			SetTimeout(timeout),
		streamClient: &http.Client{Timeout: streamTimeout},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
	}
}

type chatMessagesBody struct {
	Query          string         `json:"query"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Inputs         map[string]any `json:"inputs"`
}

// ChatMessagesStream calls POST /chat-messages in streaming mode and
// returns the raw SSE body for relaying.
func (c *Client) ChatMessagesStream(ctx context.Context, req chat.UpstreamRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(chatMessagesBody{
		Query:          req.Query,
		User:           req.UserID,
		ResponseMode:   "streaming",
		ConversationID: req.ConversationID,
		Inputs:         map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return resp.Body, nil
}

// Messages calls GET /messages for conversation history replay.
func (c *Client) Messages(ctx context.Context, userID, conversationID string) (*chat.MessageList, error) {
	var list chat.MessageList
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("conversation_id", conversationID).
		SetQueryParam("user", userID).
		SetResult(&list).
		Get("/messages")
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode(), Code: "UNKNOWN_ERROR", Message: resp.Status()}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.Body(), &payload); err == nil {
			if payload.Code != "" {
				apiErr.Code = payload.Code
			}
			if payload.Message != "" {
				apiErr.Message = payload.Message
			}
		}
		return nil, apiErr
	}

	return &list, nil
}

// Ensure interface compliance.
var _ chat.Upstream = (*Client)(nil)

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN_ERROR", Message: resp.Status}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Code != "" {
			apiErr.Code = payload.Code
		}
		if payload.Message != "" {
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
