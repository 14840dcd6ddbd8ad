package resilience

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeTrackingBody flips its flag when Close is called.
type closeTrackingBody struct {
	*bytes.Reader
	mu     *sync.Mutex
	closed *bool
}

func (b closeTrackingBody) Close() error {
	b.mu.Lock()
	*b.closed = true
	b.mu.Unlock()
	return nil
}

// scriptedTransport answers with a scripted status sequence and tracks
// whether each handed-out body was closed.
type scriptedTransport struct {
	mu     sync.Mutex
	codes  []int
	closed []*bool
}

func (t *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	code := t.codes[0]
	if len(t.codes) > 1 {
		t.codes = t.codes[1:]
	}
	closed := new(bool)
	t.closed = append(t.closed, closed)

	return &http.Response{
		StatusCode: code,
		Header:     make(http.Header),
		Body:       closeTrackingBody{Reader: bytes.NewReader(nil), mu: &t.mu, closed: closed},
	}, nil
}

func TestClient_ClosesSupersededRetryResponses(t *testing.T) {
	transport := &scriptedTransport{
		codes: []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusOK},
	}

	breaker := DefaultBreakerConfig("test-stale-bodies")
	breaker.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.Requests >= 100
	}

	client := NewClient(ClientConfig{
		Name:            "test-stale-bodies",
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		CircuitBreaker:  &breaker,
	})
	client.httpClient.Transport = transport

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		"http://backend.internal/api/location/nearest", http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// Every 5xx body stashed along the way must be closed once a later
	// attempt supersedes it.
	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.closed, 3)
	for i, closed := range transport.closed {
		assert.True(t, *closed, "response %d body must be closed", i)
	}
}
