package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

const (
	// DefaultTimeout for trace requests; full-day traces can be several MB
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond paces requests to the provider
	DefaultRequestsPerSecond = 1.0

	// DefaultCacheTTL keeps fetched traces in memory
	DefaultCacheTTL = 5 * time.Minute
)

// ErrTraceNotFound is returned when the provider has no trace for an address.
var ErrTraceNotFound = errors.New("trace not found")

var icaoPattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

// ClientConfig configures a trace Client.
type ClientConfig struct {
	// Source is the provider layout: adsb_exchange or bjets
	Source string

	// BaseURL is the directory holding trace files
	// (e.g., "https://globe.adsbexchange.com/data/traces/")
	BaseURL string

	// Timeout per HTTP request (default: 30s)
	Timeout time.Duration

	// RequestsPerSecond limits the request rate (default: 1)
	RequestsPerSecond float64

	// CacheTTL keeps fetched traces in memory; zero disables caching
	CacheTTL time.Duration

	// Retry configures backoff for failed requests
	Retry RetryConfig

	// UserAgent sent with every request (optional)
	UserAgent string
}

// DefaultClientConfig returns settings for the public ADS-B Exchange trace mirror.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Source:            SourceADSBExchange,
		BaseURL:           "https://globe.adsbexchange.com/data/traces/",
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		CacheTTL:          DefaultCacheTTL,
		Retry:             DefaultRetryConfig(),
	}
}

// Client fetches raw traces over HTTP. It is safe for concurrent use.
type Client struct {
	cfg         ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	cache       *cache.Cache
	log         *logger.Logger
}

// NewClient creates a trace client. An unknown source is rejected here so that
// misconfiguration surfaces before the first request.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if err := ValidateSource(cfg.Source); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("adsb")
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}

	c := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:         log,
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c, nil
}

// TraceURL returns the trace file URL of an address.
func (c *Client) TraceURL(icao string) string {
	base := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/"
	if c.cfg.Source == SourceADSBExchange {
		base += icao[len(icao)-2:] + "/"
	}
	return base + "trace_full_" + icao + ".json"
}

// NormaliseICAO lower-cases and validates a 24-bit hex address.
func NormaliseICAO(icao string) (string, error) {
	icao = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(icao, "~")))
	if !icaoPattern.MatchString(icao) {
		return "", fmt.Errorf("invalid ICAO address %q: expected 6 hex digits", icao)
	}
	return icao, nil
}

// FetchTrace returns the raw trace of an aircraft, from cache when fresh.
func (c *Client) FetchTrace(ctx context.Context, icao string) (*RawTrace, error) {
	icao, err := NormaliseICAO(icao)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if v, ok := c.cache.Get(icao); ok {
			c.log.Debug("trace cache hit", logger.String("icao24", icao))
			return v.(*RawTrace), nil
		}
	}

	raw, err := RetryWithBackoffResult(ctx, c.cfg.Retry, func() (*RawTrace, error) {
		return c.fetchOnce(ctx, icao)
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(icao, raw)
	}
	c.log.Info("fetched trace",
		logger.String("icao24", icao),
		logger.Int("rows", len(raw.Rows)))
	return raw, nil
}

// Invalidate drops a cached trace.
func (c *Client) Invalidate(icao string) {
	if c.cache != nil {
		c.cache.Delete(strings.ToLower(icao))
	}
}

func (c *Client) fetchOnce(ctx context.Context, icao string) (*RawTrace, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, Permanent(fmt.Errorf("rate limiter: %w", err))
	}

	url := c.TraceURL(icao)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trace: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "Rate limit exceeded",
			Headers:    extractRateLimitHeaders(resp.Header),
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, Permanent(fmt.Errorf("%s: %w", icao, ErrTraceNotFound))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, Permanent(fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var raw RawTrace
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, Permanent(fmt.Errorf("failed to parse trace response: %w", err))
	}
	return &raw, nil
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is, or wraps, a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter extracts the Retry-After header value.
// Supports both delay-seconds and HTTP-date formats; returns 0 when absent.
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}
	return 0
}

// extractRateLimitHeaders reads the X-Rate-Limit-* (or X-RateLimit-*) headers.
// Missing values are -1.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{Limit: -1, Remaining: -1}

	header := func(name string) string {
		if v := headers.Get("X-Rate-Limit-" + name); v != "" {
			return v
		}
		return headers.Get("X-RateLimit-" + name)
	}

	if val, err := strconv.Atoi(header("Limit")); err == nil {
		rlh.Limit = val
	}
	if val, err := strconv.Atoi(header("Remaining")); err == nil {
		rlh.Remaining = val
	}
	if ts, err := strconv.ParseInt(header("Reset"), 10, 64); err == nil {
		rlh.Reset = time.Unix(ts, 0)
	}
	return rlh
}
