// Package client provides a small Supabase client covering the PostgREST,
// Auth, Storage and Realtime APIs used by DanceLink.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dancelink/platform/internal/logging"
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client

	// Breaker, when set, fails requests fast while Supabase is unhealthy.
	Breaker *CircuitBreaker
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if cfg.Breaker != nil {
		wrapped := *httpClient
		base := wrapped.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped.Transport = &BreakerTransport{Base: base, Breaker: cfg.Breaker}
		httpClient = &wrapped
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// WithAccessToken returns a copy of c that authenticates as the user owning
// token, so row-level security policies apply to that user.
func (c *Client) WithAccessToken(token string) *Client {
	out := *c
	out.accessToken = token
	return &out
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// APIKey returns the key the client was created with.
func (c *Client) APIKey() string { return c.apiKey }

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
	}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client     *Client
	table      string
	columns    string
	filters    [][2]string
	orders     []string
	limit      int
	single     bool
	upsert     bool
	onConflict string
}

// Select specifies columns to select, including embedded resources such as
// "*,event:events(*)".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("eq.%v", value)})
	return q
}

// In adds an IN filter.
func (q *QueryBuilder) In(column string, values []string) *QueryBuilder {
	q.filters = append(q.filters, [2]string{column, "in.(" + strings.Join(values, ",") + ")"})
	return q
}

// Is adds an IS filter (for null, true, false).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("is.%v", value)})
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Single expects exactly one row; PostgREST answers PGRST116 otherwise.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Upsert turns the next ExecuteInsert into an upsert on onConflict.
func (q *QueryBuilder) Upsert(onConflict string) *QueryBuilder {
	q.upsert = true
	q.onConflict = onConflict
	return q
}

func (q *QueryBuilder) url(withRead bool) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)

	params := url.Values{}
	if withRead && q.columns != "" {
		params.Set("select", q.columns)
	}
	for _, f := range q.filters {
		params.Add(f[0], f[1])
	}
	if withRead && len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if withRead && q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	if q.upsert && q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}

	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(true), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req)
}

// ExecuteInsert inserts data (an object or a slice of objects) and returns
// the stored representation. Select columns, if set, shape the returned rows.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	reqURL := q.url(false)
	if q.columns != "" {
		reqURL = appendParam(reqURL, "select", q.columns)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	prefer := "return=representation"
	if q.upsert {
		prefer = "resolution=merge-duplicates," + prefer
	}
	req.Header.Set("Prefer", prefer)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	return q.client.do(req)
}

// ExecuteUpdate executes a partial UPDATE of the rows matching the filters.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	reqURL := q.url(false)
	if q.columns != "" {
		reqURL = appendParam(reqURL, "select", q.columns)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return q.client.do(req)
}

// ExecuteDelete deletes the rows matching the filters.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.url(false), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

func appendParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.Values{key: {value}}.Encode()
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a generic API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Error returns an *APIError if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode >= 400 {
		return parseAPIError(r.StatusCode, r.Body)
	}
	return nil
}

// Decode checks the status and unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := r.Error(); err != nil {
		return err
	}
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := r.JSON(v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	bearer := c.apiKey
	if c.accessToken != "" {
		bearer = c.accessToken
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if traceID := logging.GetTraceID(req.Context()); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}
