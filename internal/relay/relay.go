// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

/*
Package relay performs the HTTP calls to the two upstream systems. It owns
no business logic: callers hand it a request, it returns the raw response
plus its normalized classification.

Resilience mechanisms, applied per upstream:
  - Circuit breaker (sony/gobreaker): opens at a 60% failure rate over a
    minimum of 10 requests, 2 minute recovery timeout
  - HTTP 429 handling: exponential backoff (1s, 2s, 4s, 8s, 16s), max 5
    retries, Retry-After honored
  - Client-side rate limiter (golang.org/x/time/rate) to bound request
    rate against fragile upstreams

The relay applies no timeout beyond its HTTP client's and never retries
non-429 failures; those policies belong to the engine's callers.
*/
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/synclinic/synclinic/internal/logging"
	"github.com/synclinic/synclinic/internal/metrics"
	"github.com/synclinic/synclinic/internal/normalize"
)

// maxBodySize bounds response body reads to prevent unbounded allocation
// when an upstream streams an enormous error page.
const maxBodySize = 4 << 20 // 4MB

// Request describes one upstream HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// RawResponse is the unclassified result of one upstream call.
type RawResponse struct {
	Status      int
	ContentType string
	Location    string
	Body        []byte
}

// Normalize classifies the raw response.
func (r *RawResponse) Normalize(requestURL string) *normalize.Response {
	resp := normalize.Classify(r.Status, r.ContentType, r.Body, requestURL)
	if resp.Kind == normalize.KindRedirect {
		resp.WithLocation(r.Location)
	}
	return resp
}

// ErrNoCandidateSucceeded is returned by InvokeCandidates when every
// configured endpoint failed classification.
var ErrNoCandidateSucceeded = errors.New("no candidate endpoint succeeded")

// Client relays requests to one upstream system.
type Client struct {
	name           string
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker[*RawResponse]
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// Options tune a relay client. Zero values take the production defaults.
type Options struct {
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// NewClient creates a relay client for the named upstream.
func NewClient(name string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 10
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*RawResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			logging.Info().
				Str("upstream", cbName).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Relay circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(cbName, stateToString(from), stateToString(to)).Inc()
		},
	})

	// Redirects are reported, not followed: a 3xx from either upstream
	// means misconfiguration and must surface to the caller.
	httpClient := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		name:           name,
		httpClient:     httpClient,
		breaker:        breaker,
		limiter:        rate.NewLimiter(rate.Limit(opts.RequestsPerSec), int(opts.RequestsPerSec)),
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Name returns the upstream name the client relays to.
func (c *Client) Name() string { return c.name }

// Invoke performs one upstream call through the circuit breaker, returning
// the raw response. Transport-level failures return an error; HTTP-level
// failures return a RawResponse for the caller to classify.
func (c *Client) Invoke(ctx context.Context, req Request) (*RawResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*RawResponse, error) {
		return c.doWithRateLimitRetry(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RelayRequests.WithLabelValues(c.name, "rejected").Inc()
			logging.Warn().Err(err).Str("upstream", c.name).Msg("Relay request rejected by circuit breaker")
		} else {
			metrics.RelayRequests.WithLabelValues(c.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.RelayRequests.WithLabelValues(c.name, "success").Inc()
	return resp, nil
}

// InvokeNormalized performs one call and classifies the result.
func (c *Client) InvokeNormalized(ctx context.Context, req Request) (*normalize.Response, error) {
	raw, err := c.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return raw.Normalize(req.URL), nil
}

// InvokeCandidates tries a bounded ordered list of candidate URLs with
// first-success-wins semantics. Every attempt is logged. A response whose
// classification is OK ends the scan; otherwise the next candidate is
// tried. When all candidates fail, the last classification is returned
// alongside ErrNoCandidateSucceeded so callers can still diagnose.
func (c *Client) InvokeCandidates(ctx context.Context, method string, candidates []string, headers map[string]string, body []byte) (*normalize.Response, string, error) {
	var last *normalize.Response

	for _, candidate := range candidates {
		resp, err := c.InvokeNormalized(ctx, Request{Method: method, URL: candidate, Headers: headers, Body: body})
		if err != nil {
			logging.Warn().Err(err).Str("upstream", c.name).Str("url", candidate).Msg("Candidate endpoint transport failure")
			continue
		}
		if resp.OK() {
			logging.Debug().Str("upstream", c.name).Str("url", candidate).Msg("Candidate endpoint succeeded")
			return resp, candidate, nil
		}
		logging.Warn().
			Str("upstream", c.name).
			Str("url", candidate).
			Str("kind", string(resp.Kind)).
			Int("status", resp.Status).
			Msg("Candidate endpoint failed classification")
		last = resp
	}

	return last, "", ErrNoCandidateSucceeded
}

// doWithRateLimitRetry performs the request with automatic HTTP 429
// handling: exponential backoff, cancellable waits, Retry-After honored.
func (c *Client) doWithRateLimitRetry(ctx context.Context, req Request) (*RawResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		raw, status, err := c.doOnce(ctx, req)
		if err != nil {
			return nil, err
		}
		if status != http.StatusTooManyRequests {
			return raw.RawResponse, nil
		}

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := raw.retryAfter; retryAfter > 0 {
			delay = retryAfter
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// rawResult carries the Retry-After hint alongside the response during the
// retry loop without exposing it to callers.
type rawResult struct {
	*RawResponse
	retryAfter time.Duration
}

func (c *Client) doOnce(ctx context.Context, req Request) (*rawResult, int, error) {
	var bodyReader io.Reader = http.NoBody
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request to %s failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s response body: %w", c.name, err)
	}

	result := &rawResult{
		RawResponse: &RawResponse{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Location:    resp.Header.Get("Location"),
			Body:        body,
		},
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			result.retryAfter = seconds
		}
	}

	return result, resp.StatusCode, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
