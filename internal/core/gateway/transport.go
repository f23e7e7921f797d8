// Package gateway holds HTTP adapters for the identity provider and the
// database provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/event-gate/internal/core/domain"
	"github.com/duynhne/event-gate/middleware"
)

// Policy is the transport policy shared by provider clients.
type Policy struct {
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// Attempts is the total number of tries on transport failure. 1 means
	// no retry. Provider rejections are never retried.
	Attempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// BreakerFailures consecutive transport failures open the breaker.
	BreakerFailures uint32

	// BreakerOpenFor is how long the open breaker rejects calls.
	BreakerOpenFor time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         10 * time.Second,
		Attempts:        1,
		RetryDelay:      200 * time.Millisecond,
		BreakerFailures: 5,
		BreakerOpenFor:  30 * time.Second,
	}
}

// APIError is a 4xx answer from a provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider answered %d: %s", e.Status, e.Code)
}

// errorDecoder extracts a provider specific error code from a 4xx body.
type errorDecoder func(status int, body []byte) *APIError

type jsonClient struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	policy  Policy
	decode  errorDecoder
}

func newJSONClient(name string, httpClient *http.Client, policy Policy, decode errorDecoder) *jsonClient {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: policy.Timeout}
	}
	failures := policy.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: policy.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// The caller giving up says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	return &jsonClient{name: name, http: httpClient, breaker: breaker, policy: policy, decode: decode}
}

// post sends in as JSON and decodes a 2xx answer into out (when non-nil).
// Transport failures wrap domain.ErrProviderTransport; 4xx answers are
// returned as *APIError.
func (c *jsonClient) post(ctx context.Context, url string, header http.Header, in, out any) (err error) {
	ctx, span := middleware.StartSpan(ctx, "provider."+c.name, trace.WithAttributes(
		attribute.String("layer", "gateway"),
		attribute.String("provider", c.name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	var body []byte
	if in != nil {
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	op := func() (struct{}, error) {
		raw, err := c.exchange(ctx, url, header, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) || ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrProviderTransport, err))
			}
			return struct{}{}, err
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("%w: decode response: %v", domain.ErrProviderTransport, err))
			}
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.policy.RetryDelay)),
		backoff.WithMaxTries(uint(c.policy.Attempts)),
	)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// exchange performs one HTTP round trip through the breaker and returns the
// body of a 2xx answer.
func (c *jsonClient) exchange(ctx context.Context, url string, header http.Header, body []byte) ([]byte, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderTransport, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrProviderTransport, err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", domain.ErrProviderTransport, resp.StatusCode)
		}
		// 4xx answers are successful exchanges as far as the breaker cares.
		return &response{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		return nil, err
	}

	r := res.(*response)
	if r.status >= 400 {
		return nil, c.decode(r.status, r.body)
	}
	return r.body, nil
}

type response struct {
	status int
	body   []byte
}
