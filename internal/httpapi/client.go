// Package httpapi is the JSON-over-HTTP plumbing shared by the record,
// identity and upload status clients: request encoding, response decoding,
// outbound pacing and a circuit breaker around each upstream.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/example/bulk-record-processor/internal/apperr"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
	errorBodyBytes      = 16 * 1024
	defaultMaxFailures  = 10
	defaultOpenTimeout  = 30 * time.Second
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrResponseTooLarge is returned when a successful response body exceeds
// the configured limit.
var ErrResponseTooLarge = errors.New("httpapi: response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Option customises the client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, typically with one that carries
// bearer tokens.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit paces outbound requests. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker configures the circuit breaker: it opens after maxFailures
// consecutive failures and probes again after openTimeout.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		if maxFailures > 0 {
			c.maxFailures = maxFailures
		}
		if openTimeout > 0 {
			c.openTimeout = openTimeout
		}
	}
}

// WithBodyLimit caps how many bytes of a response body are read. Error
// bodies are additionally trimmed to a short snippet.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client sends JSON requests to one upstream.
type Client struct {
	name         string
	baseURL      string
	httpClient   HTTPClient
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	maxFailures  uint32
	openTimeout  time.Duration
	maxBodyBytes int64
	logger       zerolog.Logger
}

// New constructs a client for the upstream rooted at baseURL.
func New(name, baseURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("httpapi: name is required")
	}
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httpapi: %s: invalid base url %q", name, baseURL)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &Client{
		name:         name,
		baseURL:      strings.TrimRight(base.String(), "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		maxFailures:  defaultMaxFailures,
		openTimeout:  defaultOpenTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.maxFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("httpapi: circuit breaker state changed")
		},
	})

	return c, nil
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Do performs one request. Every failure is classified as apperr.ErrUpstream;
// the underlying *StatusError or transport error stays reachable.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.endpoint(path, query)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperr.Upstream(err, "%s %s failed", method, endpoint)
		}
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", endpoint).
		Msg("httpapi: request")

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, endpoint, body, out)
	})
	if err != nil {
		return apperr.Upstream(err, "%s %s failed", method, endpoint)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, min(c.maxBodyBytes, errorBodyBytes)))
		return &StatusError{Method: method, URL: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBodyBytes)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	endpoint := c.baseURL
	if path != "" {
		endpoint += "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// isSuccessful keeps client errors (4xx) from tripping the breaker: the
// upstream answered, the request was wrong.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code < http.StatusInternalServerError
	}
	return false
}
