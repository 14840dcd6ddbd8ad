// Package backend implements the REST client for the upstream reporting
// backend: nearest-station resolution, per-station crime rankings, reporter
// identity, report submission and SMS notification dispatch. Transport and
// HTTP failures are translated into the pipeline's error taxonomy here so
// the coordinator never inspects status codes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/patrolpoint/patrolpoint/internal/provider/resilience"
	"github.com/patrolpoint/patrolpoint/internal/report"
	"github.com/patrolpoint/patrolpoint/internal/stations"
)

const (
	// ProviderName identifies the upstream reporting backend.
	ProviderName = "reporting-backend"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 8 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the reporting-backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 8s).
	Timeout time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a reporting-backend API client. It implements report.Backend.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new reporting-backend client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// BreakerState reports the circuit state of the default resilient transport.
// The second return is false when a custom HTTP client is in use.
func (c *Client) BreakerState() (gobreaker.State, bool) {
	rc, ok := c.httpClient.(*resilience.Client)
	if !ok {
		return 0, false
	}
	return rc.BreakerState(), true
}

// NearestStation resolves the backend-authoritative nearest station for a
// coordinate.
func (c *Client) NearestStation(ctx context.Context, lat, lon float64) (*stations.NearestAnswer, error) {
	const op = "nearest-station"

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	endpoint := c.baseURL + "/api/location/nearest?" + q.Encode()

	var payload nearestStationResponse
	if err := c.doJSON(ctx, op, http.MethodGet, endpoint, "", nil, &payload); err != nil {
		return nil, err
	}

	if payload.NearestStation.Name == "" {
		return nil, &report.Error{Op: op, Message: "backend answered without a station", Err: report.ErrNotFound}
	}

	c.logger.Debug().
		Str("station", payload.NearestStation.Name).
		Str("divcode", payload.NearestStation.DivisionCode).
		Float64("travel_time_min", payload.NearestStation.TravelTimeMin).
		Msg("nearest station resolved by backend")

	return &stations.NearestAnswer{
		Name:             payload.NearestStation.Name,
		TravelDistanceKm: payload.NearestStation.TravelDistanceKm,
		TravelTimeMin:    payload.NearestStation.TravelTimeMin,
		DivisionCode:     payload.NearestStation.DivisionCode,
	}, nil
}

// TopCrimes returns the historically most frequent crime names for a station.
func (c *Client) TopCrimes(ctx context.Context, stationName, divisionCode string) ([]string, error) {
	const op = "top-crimes"

	body := topCrimesRequest{StationName: stationName, DivisionCode: divisionCode}
	var payload topCrimesResponse
	if err := c.doJSON(ctx, op, http.MethodPost, c.baseURL+"/get_top_crimes", "", body, &payload); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("station", stationName).
		Int("count", len(payload.TopCrimes)).
		Msg("top crimes fetched")

	return payload.TopCrimes, nil
}

// ReporterEmail fetches the authenticated reporter's email.
func (c *Client) ReporterEmail(ctx context.Context, token string) (string, error) {
	const op = "reporter-email"

	var payload userEmailResponse
	if err := c.doJSON(ctx, op, http.MethodGet, c.baseURL+"/api/users/email", token, nil, &payload); err != nil {
		return "", err
	}
	if payload.Email == "" {
		return "", &report.Error{Op: op, Message: "backend answered without an email", Err: report.ErrAuth}
	}
	return payload.Email, nil
}

// SubmitReport submits a crime report. The request is never retried
// automatically; a fresh user confirmation is the only retry path.
func (c *Client) SubmitReport(ctx context.Context, token string, r report.CrimeReport) error {
	const op = "submit-report"

	if err := c.doJSON(ctx, op, http.MethodPost, c.baseURL+"/api/crime-report", token, r, nil); err != nil {
		return err
	}

	c.logger.Info().
		Str("crime_type", r.CrimeType).
		Str("station", r.PoliceStation).
		Msg("crime report submitted")
	return nil
}

// SendSMS dispatches the station notification for a division.
func (c *Client) SendSMS(ctx context.Context, divisionCode, message string) error {
	const op = "send-sms"

	body := smsRequest{DivisionCode: divisionCode, Message: message}
	return c.doJSON(ctx, op, http.MethodPost, c.baseURL+"/api/send-sms", "", body, nil)
}

// doJSON executes one JSON round trip: marshal the request body if any,
// attach the bearer token if any, map transport and status failures into the
// pipeline error taxonomy, and decode the response into out when out is
// non-nil.
func (c *Client) doJSON(ctx context.Context, op, method, endpoint, token string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &report.Error{Op: op, Message: "reading backend response", Err: report.ErrNetwork}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &report.Error{Op: op, Message: "backend sent a malformed response", Err: report.ErrNetwork}
		}
	}
	return nil
}

// transportError maps a failure to reach the backend at all.
func (c *Client) transportError(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &report.Error{Op: op, Message: "backend request deadline expired", Err: report.ErrTimeout}
	case errors.Is(err, resilience.ErrCircuitOpen):
		return &report.Error{Op: op, Message: "backend circuit breaker is open", Err: report.ErrNetwork}
	default:
		return &report.Error{Op: op, Message: "backend unreachable", Err: report.ErrNetwork}
	}
}

// statusError maps a non-2xx backend answer.
func (c *Client) statusError(op string, statusCode int, body []byte) error {
	detail := backendDetail(body)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &report.Error{Op: op, Message: "backend rejected the session token", Err: report.ErrAuth}
	case statusCode == http.StatusNotFound:
		return &report.Error{Op: op, Message: "backend had no answer", Err: report.ErrNotFound}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &report.Error{Op: op, Message: "backend timed out", Err: report.ErrTimeout}
	case statusCode >= 500:
		c.logger.Warn().
			Int("status", statusCode).
			Str("op", op).
			Str("detail", detail).
			Msg("backend server error")
		return &report.Error{Op: op, Message: "backend is temporarily unavailable", Err: report.ErrNetwork}
	default:
		message := detail
		if message == "" {
			message = fmt.Sprintf("backend returned status %d", statusCode)
		}
		return &report.Error{Op: op, Message: message, Err: report.ErrValidation}
	}
}

// backendDetail extracts the FastAPI-style detail string, if any.
func backendDetail(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Detail
}
