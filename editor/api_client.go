package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/floorplan/spatial"
)

const (
	// DefaultRequestTimeout is the default HTTP timeout per attempt.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per request.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits response bodies to 50 MB.
	maxResponseBytes = 50 << 20

	// maxErrorBody is how much of an error response is kept for messages.
	maxErrorBody = 512
)

// ClientOption configures an APIClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
	token       string
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout:     DefaultRequestTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts per request.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.client = client
	}
}

// WithToken sets a bearer token sent on every request.
func WithToken(token string) ClientOption {
	return func(c *clientConfig) {
		c.token = token
	}
}

// LoadResult is a fetched floor plan with the server's caching hints.
type LoadResult struct {
	Plan         *spatial.FloorPlan
	CacheControl string
	ETag         string
}

// APIClient talks to the floor plan REST service. Network errors, 5xx and
// 429 responses are retried with exponential backoff, honoring
// Retry-After. A 409 becomes a *ConflictError and other 4xx responses a
// *StatusError. Response bodies that do not decode to a well-formed floor
// plan are reported as spatial.ErrMalformedPayload and never retried.
type APIClient struct {
	baseURL string
	cfg     clientConfig
	client  *http.Client
}

// NewAPIClient returns a client for the service at baseURL,
// e.g. "https://facilities.example.com/api".
func NewAPIClient(baseURL string, opts ...ClientOption) (*APIClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api client: base URL is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), cfg: cfg, client: client}, nil
}

// GetFloorPlan loads a floor plan.
func (c *APIClient) GetFloorPlan(ctx context.Context, id string) (*LoadResult, error) {
	resp, err := c.do(ctx, "get floor plan", request{method: http.MethodGet, path: planPath(id)})
	if err != nil {
		return nil, err
	}
	plan, err := decodePlan(resp.body)
	if err != nil {
		return nil, fmt.Errorf("get floor plan %s: %w", id, err)
	}
	return &LoadResult{
		Plan:         plan,
		CacheControl: resp.header.Get("Cache-Control"),
		ETag:         resp.header.Get("ETag"),
	}, nil
}

// SaveFloorPlan replaces the stored plan, sending version as If-Match.
func (c *APIClient) SaveFloorPlan(ctx context.Context, plan *spatial.FloorPlan, version int) (*spatial.FloorPlan, error) {
	body, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("save floor plan: encoding: %w", err)
	}
	return c.sendPlan(ctx, "save floor plan", plan.ID, version, request{
		method:      http.MethodPut,
		path:        planPath(plan.ID),
		body:        body,
		contentType: "application/json",
	})
}

// PatchMetadata applies a narrow metadata update on the server.
func (c *APIClient) PatchMetadata(ctx context.Context, id string, upd MetadataUpdate, version int) (*spatial.FloorPlan, error) {
	body, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("patch metadata: encoding: %w", err)
	}
	return c.sendPlan(ctx, "patch metadata", id, version, request{
		method:      http.MethodPatch,
		path:        planPath(id) + "/metadata",
		body:        body,
		contentType: "application/json",
	})
}

// PatchStatus changes the lifecycle status on the server.
func (c *APIClient) PatchStatus(ctx context.Context, id string, status spatial.Status, version int) (*spatial.FloorPlan, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("patch status: %w: %q", ErrUnknownStatus, status)
	}
	body, err := json.Marshal(map[string]spatial.Status{"status": status})
	if err != nil {
		return nil, fmt.Errorf("patch status: encoding: %w", err)
	}
	return c.sendPlan(ctx, "patch status", id, version, request{
		method:      http.MethodPatch,
		path:        planPath(id) + "/status",
		body:        body,
		contentType: "application/json",
	})
}

func (c *APIClient) sendPlan(ctx context.Context, op, id string, version int, req request) (*spatial.FloorPlan, error) {
	req.ifMatch = strconv.Itoa(version)
	resp, err := c.do(ctx, op, req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusConflict || se.StatusCode == http.StatusPreconditionFailed) {
			return nil, &ConflictError{PlanID: id, Version: version, Message: se.Body}
		}
		return nil, err
	}
	plan, err := decodePlan(resp.body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return plan, nil
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	ifMatch     string
}

type response struct {
	body   []byte
	header http.Header
}

// do runs req with retries. Non-retryable statuses return a *StatusError;
// exhausted retries return a *TransientError.
func (c *APIClient) do(ctx context.Context, op string, req request) (*response, error) {
	var (
		lastErr    error
		lastStatus int
		retryAfter time.Duration
	)
	for attempt := range c.cfg.maxRetries {
		if attempt > 0 {
			wait := c.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			if retryAfter > 0 {
				wait = retryAfter
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := c.doOnce(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			lastErr, lastStatus, retryAfter = err, 0, 0
			continue
		}

		var se *StatusError
		if errors.As(resp.err, &se) {
			if !retryable(se.StatusCode) {
				return nil, fmt.Errorf("%s: %w", op, se)
			}
			lastErr, lastStatus = se, se.StatusCode
			retryAfter = parseRetryAfter(resp.header.Get("Retry-After"))
			continue
		}
		return &response{body: resp.body, header: resp.header}, nil
	}

	return nil, &TransientError{Op: op, Attempts: c.cfg.maxRetries, StatusCode: lastStatus, Err: lastErr}
}

type attemptResult struct {
	body   []byte
	header http.Header
	err    error
}

// doOnce performs a single request. Transport failures are returned as
// the error; HTTP error statuses are reported in attemptResult.err.
func (c *APIClient) doOnce(ctx context.Context, r request) (*attemptResult, error) {
	u := c.baseURL + r.path
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.ifMatch != "" {
		req.Header.Set("If-Match", r.ifMatch)
	}
	if c.cfg.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP %s %s: %w", r.method, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", u, err)
	}

	out := &attemptResult{body: data, header: resp.Header}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		out.err = &StatusError{Method: r.method, URL: u, StatusCode: resp.StatusCode, Body: msg}
	}
	return out, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func decodePlan(data []byte) (*spatial.FloorPlan, error) {
	var plan spatial.FloorPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", spatial.ErrMalformedPayload, err)
	}
	if err := spatial.ValidatePayload(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func planPath(id string) string {
	return "/floor-plans/" + url.PathEscape(id)
}
