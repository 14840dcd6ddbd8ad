package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the per-request timeout for individual HTTP calls.
	// Default: 8 seconds.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for idempotent
	// requests. Default: 2.
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 200ms.
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 2 seconds.
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultBreakerConfig.
	CircuitBreaker *BreakerConfig
}

// DefaultClientConfig returns the defaults used for reporting-backend calls.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         8 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Client is a resilient HTTP client. Every request goes through the circuit
// breaker; only requests that are safe to repeat are retried. A crime-report
// submission or an SMS dispatch must reach the backend at most once per
// confirmation, so non-idempotent methods get a single attempt and the
// caller decides whether a fresh user confirmation retries them.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	bcfg := cfg.CircuitBreaker
	if bcfg == nil {
		def := DefaultBreakerConfig(cfg.Name)
		bcfg = &def
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker[*http.Response](*bcfg), //nolint:bodyclose // type param, not a response
		config:     cfg,
	}
}

// Do executes an HTTP request through the circuit breaker. Idempotent
// requests (GET, HEAD) are retried on transient failures (network errors,
// 5xx) with exponential backoff; other methods get exactly one attempt.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if isIdempotent(req.Method) {
		return c.doWithRetry(req)
	}

	resp, err := c.doOnce(req.Context(), req)
	var serverErr *ServerError
	if err != nil && errors.As(err, &serverErr) && resp != nil {
		// Single-attempt methods surface 5xx as a response for the caller
		// to map; the breaker has already recorded the failure.
		return resp, nil
	}
	return resp, err
}

func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by MaxRetries, not wall time

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		resp, err := c.doOnce(ctx, req)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				return backoff.Permanent(err)
			}
			// Hang on to a 5xx response so callers can still inspect the
			// final status after retries run out.
			if resp != nil {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				lastResp = resp
			}
			return err
		}

		if lastResp != nil {
			// A stashed 5xx response was superseded by this success.
			lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}
	return lastResp, nil
}

func (c *Client) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
		// Clone for retry safety; bodies are rebuilt by the backend client.
		r, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		// 5xx counts as a breaker failure.
		if r.StatusCode >= 500 {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return resp, err
	}
	return resp, nil
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// BreakerState returns the current circuit breaker state, for the readiness
// probe.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}
