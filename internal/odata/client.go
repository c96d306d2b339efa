// Package odata talks to the measurement document and measuring point
// OData services.
//
// [Client.Submit] implements core.Submitter and [Client.LookupMeasuringPoint]
// with [Client.LatestReading] implement core.PointLookup. Read-only GETs are
// retried on 429 and 5xx; the create POST is sent exactly once.
package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Default service paths, relative to the base URL.
const (
	DefaultCreatePath = "/sap/opu/odata4/sap/api_measurementdocument/srvd_a2x/sap/MeasurementDocument/0001/MeasurementDocument"
	DefaultLookupPath = "/zc_measuringpointdata"
)

const (
	maxRetries   = 3
	maxErrorBody = 512
)

// Client is an HTTP client for the OData services with optional Bearer auth.
type Client struct {
	baseURL    string
	token      string
	createPath string
	lookupPath string
	httpClient *http.Client
	logger     *slog.Logger

	// sleep waits between GET retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// APIError is a non-2xx reply from the service.
type APIError struct {
	StatusCode int
	Message    string // extracted from the body
	Body       string // first 512 bytes
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d - %s", e.StatusCode, e.Message)
}

// TransportError wraps a failure that produced no HTTP reply, or a CSRF
// token fetch that was refused.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "ERROR: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. A client without a
// cookie jar loses the CSRF session between fetch and POST.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBearerToken sends "Authorization: Bearer <token>" on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithPaths overrides the create and lookup service paths. Empty values keep
// the defaults.
func WithPaths(createPath, lookupPath string) Option {
	return func(c *Client) {
		if createPath != "" {
			c.createPath = createPath
		}
		if lookupPath != "" {
			c.lookupPath = lookupPath
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		createPath: DefaultCreatePath,
		lookupPath: DefaultLookupPath,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// getJSON GETs rawURL and decodes a 2xx body into dest with UseNumber.
// 429 (honouring Retry-After) and 5xx are retried with 1s, 2s, 4s backoff.
func (c *Client) getJSON(ctx context.Context, rawURL string, dest any) error {
	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt, lastErr)
			c.logger.Debug("retrying odata GET",
				"url", rawURL,
				"attempt", attempt,
				"status", lastErr.StatusCode,
				"wait_ms", wait.Milliseconds(),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}

		req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &TransportError{Err: err}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return &TransportError{Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if err := dec.Decode(dest); err != nil {
				return fmt.Errorf("decode %s: %w", rawURL, err)
			}
			return nil
		}

		apiErr := newAPIError(resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}

		return apiErr
	}

	return lastErr
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    ExtractErrorMessage(body),
		Body:       capBody(body, maxErrorBody),
	}
}

// capBody cuts body to at most n bytes on a rune boundary. Invalid sequences,
// including one split by an upstream read limit, are dropped.
func capBody(body []byte, n int) string {
	if len(body) > n {
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n]
	}
	return strings.ToValidUTF8(string(body), "")
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + encodeQuery(query)
	}
	return u
}

// encodeQuery is url.Values.Encode with %20 for spaces; OData services
// reject '+' inside $filter.
func encodeQuery(q url.Values) string {
	return strings.ReplaceAll(q.Encode(), "+", "%20")
}

// backoffDelay returns the wait duration before a retry attempt.
func backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 1s, 2s, 4s
	return time.Duration(1<<(attempt-1)) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
