package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/event-gate/internal/core/domain"
)

func alwaysDecode(status int, _ []byte) *APIError {
	return &APIError{Status: status, Code: "REJECTED"}
}

func TestJSONClient_RetriesTransportOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := fastPolicy()
	p.Attempts = 2
	c := newJSONClient("t", srv.Client(), p, alwaysDecode)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.post(context.Background(), srv.URL, nil, map[string]string{"a": "b"}, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestJSONClient_NeverRetriesRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := fastPolicy()
	p.Attempts = 3
	c := newJSONClient("t", srv.Client(), p, alwaysDecode)

	err := c.post(context.Background(), srv.URL, nil, nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "REJECTED", apiErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJSONClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := fastPolicy()
	p.BreakerFailures = 2
	p.BreakerOpenFor = time.Minute
	c := newJSONClient("t", srv.Client(), p, alwaysDecode)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, c.post(context.Background(), srv.URL, nil, nil, nil), domain.ErrProviderTransport)
	}
	err := c.post(context.Background(), srv.URL, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrProviderTransport)
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits")
}

func TestJSONClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newJSONClient("t", srv.Client(), fastPolicy(), alwaysDecode)
	err := c.post(ctx, srv.URL, nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONClient_AbandonedCallsKeepBreakerClosed(t *testing.T) {
	var slow atomic.Bool
	slow.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := fastPolicy()
	p.BreakerFailures = 2
	p.BreakerOpenFor = time.Minute
	c := newJSONClient("t", srv.Client(), p, alwaysDecode)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := c.post(ctx, srv.URL, nil, nil, nil)
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, domain.ErrProviderTransport)
	}

	slow.Store(false)
	require.NoError(t, c.post(context.Background(), srv.URL, nil, nil, nil))
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State())
}
