// Package api implements the HTTP client for the back-office REST API.
// All methods are context-aware, respect the shared rate limiter, retry on
// transient errors (429, 5xx) and run behind a circuit breaker.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/derickschaefer/pitboss/internal/logging"
)

const (
	defaultPageSize    = 100
	maxPages           = 1000
	maxAttempts        = 3 // one call plus two retries
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 4 * time.Second
	userAgent          = "pitboss/1.0"
)

var (
	// ErrNoToken is returned without touching the network when no bearer
	// token is available.
	ErrNoToken = errors.New("no auth token")
	// ErrUnauthorized is returned for HTTP 401 responses.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is a non-2xx response that was not retried away.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// TokenFunc supplies the current bearer token. It is called per request so a
// login or logout takes effect immediately.
type TokenFunc func() string

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       TokenFunc
	Timeout     time.Duration
	Rate        float64 // requests per second
	PageSize    int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// BreakerThreshold is the number of consecutive failed calls that opens
	// the circuit. Zero means 5.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
	HTTPClient       *http.Client
}

// Client is the back-office API HTTP client.
type Client struct {
	baseURL     string
	token       TokenFunc
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	pageSize    int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewClient creates a Client from opts, filling in defaults.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	ratePerSec := opts.Rate
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	token := opts.Token
	if token == nil {
		token = func() string { return "" }
	}
	c := &Client{
		baseURL:     baseURL,
		token:       token,
		httpClient:  hc,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), burst),
		pageSize:    opts.PageSize,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoffBase
	}
	if c.backoffCap <= 0 {
		c.backoffCap = defaultBackoffCap
	}

	threshold := opts.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "backoffice-api",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client-side mistakes say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.Code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// PageSize is the page size used for paginated list calls.
func (c *Client) PageSize() int { return c.pageSize }

// BreakerState reports the circuit breaker state (closed, half-open, open).
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	body, err := c.getRaw(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// getRaw performs a GET request through the breaker, handling rate limiting
// and retries, and returns the raw response body.
func (c *Client) getRaw(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	token := c.token()
	if token == "" {
		return nil, ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + strings.TrimPrefix(endpoint, "/")
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	requestID := uuid.NewString()
	logging.Debug().Str("url", reqURL).Str("request_id", requestID).Msg("api request")

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, reqURL, token, requestID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return body, err
}

func (c *Client) doWithRetry(ctx context.Context, reqURL, token, requestID string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			logging.Debug().Int("attempt", attempt).Dur("backoff", backoff).Str("request_id", requestID).Msg("retrying after backoff")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Request-ID", requestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		logging.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Str("request_id", requestID).Msg("api response")

		// Retry on server errors and rate limiting
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, errorMessage(body))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
		}
		return body, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

// backoff returns base * 2^(attempt-1), capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d > c.backoffCap || d <= 0 {
		return c.backoffCap
	}
	return d
}

// errorMessage extracts the server's message field, falling back to the
// trimmed body.
func errorMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	switch {
	case apiErr.Message != "":
		return apiErr.Message
	case apiErr.Error != "":
		return apiErr.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
