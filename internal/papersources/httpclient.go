package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// DefaultUserAgent identifies the service to external APIs.
const DefaultUserAgent = "Helixir-PaperSearch/1.0"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the provider in errors, e.g. "OpenAlex".
	Source string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the number of retries on network errors and 5xx responses.
	MaxRetries int

	// RetryDelay is the delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header carrying the API key (e.g. "Authorization").
	APIKeyHeader string

	// APIKeyPrefix is prepended to the key value (e.g. "Bearer ").
	APIKeyPrefix string
}

// HTTPClient wraps http.Client with per-provider rate limiting and retries.
//
// Network errors and 5xx responses are retried locally. A 429 is never
// retried here: it is returned as a *domain.RateLimitError carrying the
// Retry-After hint so the search orchestrator's rate-limit policy decides.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new rate-limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Source == "" {
		cfg.Source = "provider"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes req after waiting on the rate limiter.
//
// The request body is not preserved across retries unless req.GetBody is set.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKeyPrefix+c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				retryAfter := c.retryAfter(resp)
				drain(resp)
				return nil, domain.NewRateLimitError(c.config.Source, retryAfter)
			case resp.StatusCode >= 500 && resp.StatusCode < 600:
				drain(resp)
				lastErr = domain.NewExternalAPIError(c.config.Source, resp.StatusCode, "server error", nil)
			default:
				return resp, nil
			}
		}

		if attempt == c.config.MaxRetries {
			break
		}
		if err := waitFor(req.Context(), c.config.RetryDelay); err != nil {
			return nil, err
		}
		if err := resetRequestBody(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// retryAfter parses the Retry-After header as seconds or an HTTP date.
// It returns zero when the header is absent or unparseable.
func (c *HTTPClient) retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
	}
}

// waitFor sleeps for delay or until ctx is done.
func waitFor(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
