// Package httpclient is a small JSON-over-HTTP client with bearer auth and
// retry, shared by the bridge connector and the CLI.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	maxRetries     = 3
	maxErrorBody   = 512
	defaultBackoff = time.Second
)

// Client sends JSON requests to a base URL.
type Client struct {
	baseURL    string
	token      string
	backoff    time.Duration
	httpClient *http.Client
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithBackoff sets the first retry delay; it doubles per attempt.
// Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a Client. An empty token sends no Authorization header.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		backoff:    defaultBackoff,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON sends a GET and decodes the JSON response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, dest)
}

// PostJSON sends body as JSON and decodes the response into dest (which may
// be nil).
func (c *Client) PostJSON(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpclient: marshal: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, data, dest)
}

// do sends the request, retrying 429 (honouring Retry-After) and 5xx with
// exponential backoff. Other non-2xx responses return *APIError at once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, dest any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.delay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if dest == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, dest)
		}

		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: msg}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
		case resp.StatusCode >= 500:
			lastErr = apiErr
		default:
			return apiErr
		}
	}
	return lastErr
}

func (c *Client) delay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoff << (attempt - 1)
}
