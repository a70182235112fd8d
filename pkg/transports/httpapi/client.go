// Package httpapi is the HTTP transport shared by the platform adapters.
//
// Every request goes through a failsafe-go executor: a retry policy with
// jittered exponential backoff on 429, 5xx and network errors, and an
// optional circuit breaker that opens after repeated server failures.
// Create and CreateGraphQL are for calls that are not idempotent: they
// retry only when the server cannot have acted on the request (429 or a
// refused connection), never after a timeout or a 5xx.
// Non-2xx responses surface as *APIError.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

// maxBodyBytes limits how much of a response body is read.
const maxBodyBytes = 4 << 20

// maxErrorBody limits the body kept on an APIError.
const maxErrorBody = 512

// response is a fully read HTTP response. Reading the body inside the
// attempt keeps retried responses from leaking connections.
type response struct {
	status int
	body   []byte
}

// Client is a JSON API client for one platform.
type Client struct {
	name     string
	cfg      Config
	http     *http.Client
	executor failsafe.Executor[*response]
	// creates runs non-idempotent calls.
	creates failsafe.Executor[*response]
	breaker  circuitbreaker.CircuitBreaker[*response]
	logger   zerolog.Logger
	tracer   *telemetry.Tracer
	metrics  *telemetry.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTelemetry instruments every call with a provider span and metrics.
func WithTelemetry(tracer *telemetry.Tracer, metrics *telemetry.Metrics) Option {
	return func(c *Client) {
		c.tracer = tracer
		c.metrics = metrics
	}
}

// New creates a client named after its platform.
func New(name string, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	c := &Client{
		name:   name,
		cfg:    cfg,
		http:   &http.Client{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "httpapi").Str("platform", name).Logger()

	retry := c.retryPolicy(retryable)
	createRetry := c.retryPolicy(retryableCreate)
	if cfg.EnableCircuitBreaker {
		c.breaker = c.circuitBreaker()
		c.executor = failsafe.With[*response](retry, c.breaker)
		c.creates = failsafe.With[*response](createRetry, c.breaker)
	} else {
		c.executor = failsafe.With[*response](retry)
		c.creates = failsafe.With[*response](createRetry)
	}

	return c, nil
}

// Name returns the platform name.
func (c *Client) Name() string {
	return c.name
}

// BreakerOpen reports whether the circuit breaker is currently open.
func (c *Client) BreakerOpen() bool {
	return c.breaker != nil && c.breaker.IsOpen()
}

//nolint:bodyclose // *response is already read and closed
func (c *Client) retryPolicy(handle func(*response, error) bool) retrypolicy.RetryPolicy[*response] {
	builder := retrypolicy.NewBuilder[*response]().
		HandleIf(handle).
		WithMaxRetries(c.cfg.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*response]) {
			ev := c.logger.Warn().Int("attempt", e.Attempts())
			if err := e.LastError(); err != nil {
				ev = ev.Err(err)
			} else if r := e.LastResult(); r != nil {
				ev = ev.Int("status", r.status)
			}
			ev.Msg("retrying request")
		})

	if c.cfg.MaxRetries > 0 {
		builder = builder.WithBackoff(c.cfg.BaseDelay, c.cfg.MaxDelay).WithJitterFactor(0.1)
	}
	return builder.Build()
}

//nolint:bodyclose // *response is already read and closed
func (c *Client) circuitBreaker() circuitbreaker.CircuitBreaker[*response] {
	return circuitbreaker.NewBuilder[*response]().
		HandleIf(func(r *response, err error) bool {
			if err != nil {
				return retryableError(err)
			}
			return r != nil && r.status >= http.StatusInternalServerError
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(c.cfg.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			c.logger.Warn().
				Str("from_state", stateName(e.OldState)).
				Str("to_state", stateName(e.NewState)).
				Msg("circuit breaker state change")
		}).
		Build()
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, op, path string, out any) error {
	return c.Do(ctx, op, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, op, path string, in, out any) error {
	return c.Do(ctx, op, http.MethodPost, path, in, out)
}

// Create issues a POST that creates a resource. It is not retried once the
// request may have reached the server, so a slow create can never leave a
// duplicate behind.
func (c *Client) Create(ctx context.Context, op, path string, in, out any) error {
	return c.do(ctx, c.creates, op, http.MethodPost, path, in, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, op, path string) error {
	return c.Do(ctx, op, http.MethodDelete, path, nil, nil)
}

// Do sends a request through the retry and breaker policies. op names
// the call in spans and metrics. A nil out discards the response body.
func (c *Client) Do(ctx context.Context, op, method, path string, in, out any) error {
	return c.do(ctx, c.executor, op, method, path, in, out)
}

func (c *Client) do(ctx context.Context, exec failsafe.Executor[*response], op, method, path string, in, out any) error {
	return telemetry.ObserveProviderCall(ctx, c.tracer, c.metrics, c.name, op, func(ctx context.Context) error {
		var payload []byte
		if in != nil {
			var err error
			payload, err = json.Marshal(in)
			if err != nil {
				return fmt.Errorf("%s: failed to encode %s request: %w", c.name, op, err)
			}
		}

		resp, err := exec.WithContext(ctx).Get(func() (*response, error) {
			return c.attempt(ctx, method, path, payload)
		})
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return fmt.Errorf("%s: %s: circuit breaker open: %w", c.name, op, err)
			}
			return fmt.Errorf("%s: %s %s: %w", c.name, method, path, err)
		}

		if resp.status < 200 || resp.status >= 300 {
			return &APIError{
				Platform: c.name,
				Method:   method,
				Path:     path,
				Status:   resp.status,
				Body:     truncate(strings.TrimSpace(string(resp.body)), maxErrorBody),
			}
		}

		if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("%s: failed to decode %s response: %w", c.name, op, err)
		}
		return nil
	})
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", string(c.cfg.AuthScheme)+" "+c.cfg.Token)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Msg("request completed")

	return &response{status: res.StatusCode, body: data}, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

//nolint:bodyclose // *response is already read and closed
func retryable(r *response, err error) bool {
	if err != nil {
		return retryableError(err)
	}
	return r != nil && retryableStatus(r.status)
}

// retryableCreate only accepts failures where the request was rejected
// before the server could act on it.
//
//nolint:bodyclose // *response is already read and closed
func retryableCreate(r *response, err error) bool {
	if err != nil {
		return errors.Is(err, syscall.ECONNREFUSED)
	}
	return r != nil && r.status == http.StatusTooManyRequests
}

func retryableError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, circuitbreaker.ErrOpen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
