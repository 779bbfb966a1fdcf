package platform

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryConfig defines retry behavior for transient platform errors
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []int // HTTP status codes that should be retried
}

// DefaultRetryConfig retries rate limiting (429) and maintenance (503)
// responses as well as gateway errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		BackoffFactor:   2.0,
		RetryableErrors: []int{429, 502, 503, 504},
	}
}

// unsentStatuses are the only retryable responses for requests that are not
// idempotent: the platform rejected them before acting on them.
var unsentStatuses = []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}

// maxServerWait caps how long a Retry-After or rate limit reset header can
// make a single retry sleep.
const maxServerWait = 15 * time.Minute

// RetryableHTTPClient wraps an HTTP client with retries and client side
// rate limiting.
type RetryableHTTPClient struct {
	client      *http.Client
	retryConfig RetryConfig
	limiter     *rate.Limiter
	log         zerolog.Logger
	now         func() time.Time
}

// NewRetryableHTTPClient creates a new HTTP client with retry logic.
// requestsPerSecond <= 0 disables rate limiting.
func NewRetryableHTTPClient(timeout time.Duration, requestsPerSecond float64, cfg RetryConfig, logger zerolog.Logger) *RetryableHTTPClient {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &RetryableHTTPClient{
		client:      &http.Client{Timeout: timeout},
		retryConfig: cfg,
		limiter:     rate.NewLimiter(limit, 1),
		log:         logger,
		now:         time.Now,
	}
}

// Do executes the request, retrying transient failures. Requests with a body
// must be built with http.NewRequestWithContext so GetBody is set.
// Non-idempotent requests (POST, PATCH) are only retried on 429 and 503;
// a transport error or gateway status may arrive after the platform acted.
func (c *RetryableHTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	idempotent := isIdempotent(req.Method)
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqClone := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			reqClone.Body = body
		}

		resp, err := c.client.Do(reqClone)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if idempotent && attempt < c.retryConfig.MaxRetries {
				delay := c.calculateDelay(attempt)
				c.log.Warn().
					Err(err).
					Int("attempt", attempt+1).
					Int("max_retries", c.retryConfig.MaxRetries).
					Dur("delay", delay).
					Str("url", req.URL.String()).
					Msg("platform request failed, retrying")
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if c.shouldRetry(resp.StatusCode, idempotent) && attempt < c.retryConfig.MaxRetries {
			delay, fromServer := c.serverDelay(resp)
			if !fromServer {
				delay = c.calculateDelay(attempt)
			}
			resp.Body.Close()
			c.log.Warn().
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Int("max_retries", c.retryConfig.MaxRetries).
				Dur("delay", delay).
				Str("url", req.URL.String()).
				Msg("platform returned retryable status, retrying")
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *RetryableHTTPClient) shouldRetry(statusCode int, idempotent bool) bool {
	if !idempotent && !containsStatus(unsentStatuses, statusCode) {
		return false
	}
	return containsStatus(c.retryConfig.RetryableErrors, statusCode)
}

func containsStatus(codes []int, statusCode int) bool {
	for _, code := range codes {
		if statusCode == code {
			return true
		}
	}
	return false
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// serverDelay reads Retry-After (seconds) or X-RateLimit-Reset (unix
// seconds) from a throttled response.
func (c *RetryableHTTPClient) serverDelay(resp *http.Response) (time.Duration, bool) {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return capWait(time.Duration(secs) * time.Second), true
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
			if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
				d := time.Unix(reset, 0).Sub(c.now())
				if d < 0 {
					d = 0
				}
				return capWait(d), true
			}
		}
	}
	return 0, false
}

func capWait(d time.Duration) time.Duration {
	if d > maxServerWait {
		return maxServerWait
	}
	return d
}

// calculateDelay calculates exponential backoff delay with jitter
func (c *RetryableHTTPClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.InitialDelay) * math.Pow(c.retryConfig.BackoffFactor, float64(attempt))

	// Apply jitter (±25%)
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}

	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Paginator bounds offset/limit listings.
type Paginator struct {
	PageSize int
	MaxPages int
}

func NewPaginator() *Paginator {
	return &Paginator{
		PageSize: 100,
		MaxPages: 50, // Limit to prevent runaway pagination
	}
}
