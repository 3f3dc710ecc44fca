package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dancelink/platform/internal/logging"
)

// =============================================================================
// JSON Client
// =============================================================================

// Client is a small JSON-over-HTTP client for calling edge functions and
// third-party APIs. Static headers (apikey, Authorization) are attached to
// every request and the trace id from ctx is forwarded as X-Trace-ID.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    http.Header
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Headers    map[string]string
	HTTPClient *http.Client
}

// NewClient creates a JSON client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		headers:    headers,
	}
}

// Do executes a request; body, when non-nil, is sent as JSON.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID := logging.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// PostJSON posts body and decodes a successful response into target.
func (c *Client) PostJSON(ctx context.Context, path string, body, target interface{}) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, target)
}

// DecodeResponse decodes a JSON response into the target struct.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	if target == nil {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<20)); err != nil {
			return fmt.Errorf("discard response body: %w", err)
		}
		return nil
	}

	body, err := ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// StatusError is returned by DecodeResponse for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}
