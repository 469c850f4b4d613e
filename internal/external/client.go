// Package external provides the anti-corruption layer between Floodline
// domain logic and remote HTTP services. All outbound HTTP calls are routed
// through the BaseClient, which enforces consistent resilience patterns:
// circuit breaking, retries with exponential backoff, trace propagation, and
// error mapping.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"floodline/internal/types"
)

// RetryPolicy configures the retry behavior for the BaseClient.
//
// Feed adapters construct their client with MaxRetries=0: retrying transient
// feed failures is the recurring-job scheduler's responsibility, and stacking
// a second retry loop underneath it would multiply the attempts.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for one-shot outbound calls
// (webhook delivery) that have no scheduler above them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// NoRetryPolicy returns a policy with internal retries disabled.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0, MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// BaseClient wraps an *http.Client and a circuit breaker to enforce
// consistent resilience patterns on all outbound HTTP calls. Feed adapters
// and the webhook channel embed or hold a BaseClient.
type BaseClient struct {
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy  RetryPolicy
	userAgent    string
	upstreamCode types.ErrorCode
	sleepFn      func(time.Duration) // for testability; defaults to time.Sleep
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient creates a BaseClient. upstreamCode is the AppError code used
// when the remote service is unreachable or persistently failing; it decides
// which retry machinery (scheduler vs none) sees the failure as transient.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	upstreamCode types.ErrorCode,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client: httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil
			},
		}),
		retryPolicy:  retryPolicy,
		userAgent:    userAgent,
		upstreamCode: upstreamCode,
		sleepFn:      time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do executes the HTTP request with:
//  1. Trace ID injection (X-B3-TraceId from context)
//  2. User-Agent header injection
//  3. Circuit breaker wrapping
//  4. Retry on 429/5xx (respecting Retry-After headers), per policy
//  5. Error mapping to types.AppError
//
// On success (2xx/3xx/4xx other than 429), Do returns the response as-is.
// The caller is responsible for closing the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	c.decorate(req)

	payload, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	var failedResp *http.Response
	var failedErr error

	for attempt := 0; ; attempt++ {
		if payload != nil {
			req.Body = io.NopCloser(bytes.NewReader(payload))
			req.ContentLength = int64(len(payload))
		}

		resp, attemptErr := c.breaker.Execute(func() (*http.Response, error) {
			return c.attempt(req)
		})
		if attemptErr == nil {
			return resp, nil
		}
		failedErr = attemptErr

		// An open breaker will not recover within this call.
		breakerRefused := errors.Is(attemptErr, gobreaker.ErrOpenState) ||
			errors.Is(attemptErr, gobreaker.ErrTooManyRequests)

		lastAttempt := breakerRefused || attempt >= c.retryPolicy.MaxRetries
		if lastAttempt {
			if failedResp == nil {
				failedResp = resp
			}
			break
		}

		if resp != nil {
			resp.Body.Close()
		}
		c.sleepFn(c.backoffFor(attempt, resp))
	}

	if failedResp != nil {
		failedResp.Body.Close()
	}
	return nil, c.mapError(failedResp, failedErr)
}

// decorate applies the standard outbound headers.
func (c *BaseClient) decorate(req *http.Request) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// snapshotBody drains the request body so each retry can replay it. Bodyless
// requests (GET, DELETE) pass through untouched.
func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	defer req.Body.Close()

	payload, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to read request body for retry support",
			err,
		)
	}
	return payload, nil
}

// attempt issues a single request. 429 and 5xx come back as errors so the
// breaker counts them as failures; the response is still returned for
// Retry-After inspection. Other statuses, 4xx included, are the caller's
// problem and pass through untouched.
func (c *BaseClient) attempt(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if retryableStatus(resp.StatusCode) {
		return resp, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return resp, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// backoffFor determines the wait before the next retry attempt. An explicit
// Retry-After header wins; otherwise exponential backoff with full jitter,
// clamped to [MinWait, MaxWait].
func (c *BaseClient) backoffFor(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if wait, ok := c.retryAfter(resp.Header.Get("Retry-After")); ok {
			return wait
		}
	}

	ceiling := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	ceiling = math.Min(ceiling, float64(c.retryPolicy.MaxWait))

	floor := float64(c.retryPolicy.MinWait)
	if ceiling <= floor {
		return c.retryPolicy.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

// retryAfter parses a Retry-After header value, either delta-seconds or an
// HTTP date, clamped to MaxWait.
func (c *BaseClient) retryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait), true
	}
	if at, err := http.ParseTime(header); err == nil {
		wait := time.Until(at)
		if wait <= 0 {
			return c.retryPolicy.MinWait, true
		}
		return min(wait, c.retryPolicy.MaxWait), true
	}
	return 0, false
}

// mapError translates HTTP-level failures into domain-level AppErrors. All
// remote failure modes map onto the client's upstream code so that callers
// classify them uniformly as transient.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			c.upstreamCode,
			"circuit breaker is open; upstream service unavailable",
			err,
		)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(c.upstreamCode, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(
				c.upstreamCode,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode),
				err,
			)
		}
	}

	// Network error, DNS failure, timeout.
	return types.NewAppError(c.upstreamCode, "upstream request failed", err)
}
