package gitlab

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/KaramelBytes/gitlab-search/internal/metrics"
)

// DefaultBaseURL is the API root of gitlab.com.
const DefaultBaseURL = "https://gitlab.com/api/v4"

const perPage = "100"

// Cache stores raw API pages. Implementations treat failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	Token       string
	IgnoreCert  bool
	MaxRequests int
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RequestID is sent as X-Request-Id so a run can be traced in GitLab's logs.
	RequestID string
	UserAgent string
	Cache     Cache
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Client talks to the GitLab REST API. It is safe for concurrent use; the
// number of requests in flight never exceeds Options.MaxRequests.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	token            string
	tokenHash        string
	requestID        string
	userAgent        string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sem              *semaphore.Weighted
	flight           singleflight.Group
	cache            Cache
	metrics          *metrics.Metrics
	log              *zap.Logger
}

// New returns a client with the given options.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 15
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 60 * time.Second
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 4 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = opts.MaxRequests
	if opts.IgnoreCert {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // requested with --ignore-cert
		opts.Logger.Debug("certificate will not be verified")
	}
	sum := sha256.Sum256([]byte(opts.Token))
	return &Client{
		httpClient:       &http.Client{Timeout: opts.HTTPTimeout, Transport: transport},
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		token:            opts.Token,
		tokenHash:        hex.EncodeToString(sum[:8]),
		requestID:        opts.RequestID,
		userAgent:        opts.UserAgent,
		retryMaxAttempts: opts.RetryMax,
		retryBaseDelay:   opts.BaseDelay,
		retryMaxDelay:    opts.MaxDelay,
		sem:              semaphore.NewWeighted(int64(opts.MaxRequests)),
		cache:            opts.Cache,
		metrics:          opts.Metrics,
		log:              opts.Logger,
	}
}

// page is one API response body plus the URL of the following page.
type page struct {
	Body json.RawMessage `json:"body"`
	Next string          `json:"next,omitempty"`
}

func (c *Client) cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(c.tokenHash + "\n" + rawURL))
	return hex.EncodeToString(sum[:])
}

// fetch returns a page from the cache or the API. Identical concurrent
// fetches share one request.
func (c *Client) fetch(ctx context.Context, endpoint, rawURL string) (*page, error) {
	key := c.cacheKey(rawURL)
	if c.cache != nil {
		if b, ok := c.cache.Get(ctx, key); ok {
			var p page
			if err := json.Unmarshal(b, &p); err == nil {
				c.metrics.CacheLookup(true)
				c.log.Debug("cache hit", zap.String("url", rawURL))
				return &p, nil
			}
		}
		c.metrics.CacheLookup(false)
	}
	v, err, _ := c.flight.Do(key, func() (any, error) {
		p, err := c.get(ctx, endpoint, rawURL)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if b, err := json.Marshal(p); err == nil {
				c.cache.Set(ctx, key, b)
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*page), nil
}

// get performs a GET with retries on 429, 5xx and transient network errors.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) (*page, error) {
	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, retry, after, err := c.attempt(ctx, endpoint, rawURL)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if !retry || attempt == c.retryMaxAttempts {
			break
		}
		wait := after
		if wait <= 0 {
			wait = withJitter(backoff)
			if c.retryMaxDelay > 0 && wait > c.retryMaxDelay {
				wait = c.retryMaxDelay
			}
			backoff *= 2
		}
		c.log.Debug("retrying request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, endpoint, rawURL string) (p *page, retry bool, after time.Duration, err error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, false, 0, err
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, 0, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.token)
	}
	if c.requestID != "" {
		req.Header.Set("X-Request-Id", c.requestID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("requesting", zap.String("method", http.MethodGet), zap.String("url", rawURL))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(endpoint, 0, time.Since(start))
		return nil, isRetryableNetErr(err), 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			RequestID:  extractRequestID(resp),
			URL:        rawURL,
		}
		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
					after = time.Duration(secs) * time.Second
				}
			}
			return nil, true, after, classifyAPIError(apiErr, resp)
		}
		return nil, false, 0, classifyAPIError(apiErr, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, isRetryableNetErr(err), 0, fmt.Errorf("read response: %w", err)
	}
	return &page{Body: body, Next: nextLink(resp.Header.Get("Link"))}, false, 0, nil
}

// getAll follows pagination from rawURL and decodes every page into T.
func getAll[T any](ctx context.Context, c *Client, endpoint, rawURL string) ([]T, error) {
	var out []T
	seen := make(map[string]bool)
	for next := rawURL; next != "" && !seen[next]; {
		seen[next] = true
		p, err := c.fetch(ctx, endpoint, next)
		if err != nil {
			return nil, err
		}
		var items []T
		if err := json.Unmarshal(p.Body, &items); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
		}
		out = append(out, items...)
		next = p.Next
	}
	return out, nil
}

// getOne fetches a single object.
func getOne[T any](ctx context.Context, c *Client, endpoint, rawURL string) (T, error) {
	var out T
	p, err := c.fetch(ctx, endpoint, rawURL)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(p.Body, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return out, nil
}

// nextLink extracts the rel="next" URL from a Link header:
//
//	<url>; rel="prev", <url>; rel="next", <url>; rel="first", <url>; rel="last"
func nextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, entry := range strings.Split(header, ",") {
		parts := strings.Split(entry, ";")
		if len(parts) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(parts[0]), "<>")
		for _, attr := range parts[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

// errorMessage pulls a human readable message out of a GitLab error body.
// GitLab uses {"message": "..."}, {"message": {...}} and {"error": "..."}.
func errorMessage(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, k := range []string{"message", "error_description", "error"} {
		switch v := raw[k].(type) {
		case string:
			return v
		case nil:
			continue
		default:
			b, _ := json.Marshal(v)
			return string(b)
		}
	}
	return ""
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls the correlation id GitLab echoes back.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Gitlab-Meta"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
