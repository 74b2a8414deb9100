package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/rickgao/room-relay/internal/event"
)

// StoredMessage is the JSON body posted to the external store.
type StoredMessage struct {
	Content   string       `json:"content"`
	Sender    event.Sender `json:"sender"`
	Timestamp string       `json:"timestamp"`
}

// StoreError represents a non-2xx response from the external store.
type StoreError struct {
	StatusCode int
	Body       []byte
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true if the error should trigger a retry.
func (e *StoreError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Client posts messages to the external store with bounded retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a store client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// SaveMessage posts one message to POST {baseUrl}/room/messages/{roomId},
// retrying transient failures with exponential backoff. A 4xx response or
// exhausted retries is terminal for the message.
func (c *Client) SaveMessage(ctx context.Context, roomID int64, msg StoredMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	path := fmt.Sprintf("/room/messages/%d", roomID)
	return c.postWithRetry(ctx, path, body)
}

// post performs a single POST attempt.
func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StoreError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	return nil
}

// postWithRetry performs a POST with exponential backoff retry. Network
// errors and retryable status codes retry; anything else returns
// immediately.
func (c *Client) postWithRetry(ctx context.Context, path string, body []byte) error {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			c.logger.Debug("retrying store request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		err := c.post(ctx, path, body)
		if err == nil {
			return nil
		}

		lastErr = err

		// 4xx is terminal; network errors and timeouts are retryable.
		storeErr, ok := err.(*StoreError)
		if ok && !storeErr.IsRetryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
