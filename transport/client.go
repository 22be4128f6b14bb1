// Package transport is the HTTP client shared by the lyrics providers and the token manager.
// Every request is paced by a token bucket and retried with exponential backoff.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultRetryMax = 3

	// maxBodySize caps how much of a response body is read
	maxBodySize = 8 << 20
)

// Options configures a Client. A Timeout, RetryWaitMin or RetryWaitMax <= 0 keeps the
// default, RatePerSecond <= 0 disables pacing and Burst <= 0 means 1. RetryMax counts
// retries after the first attempt: 0 disables them, a negative value uses DefaultRetryMax.
type Options struct {
	Timeout       time.Duration
	RetryMax      int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	RatePerSecond float64
	Burst         int
	UserAgent     string
}

// Client wraps a retrying HTTP client with request pacing
type Client struct {
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	userAgent  string
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v
func (r *Response) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// StatusError is returned by GetJSON for non-2xx responses
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// NewClient creates a client from opts
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Debugf("%s Retrying %s %s (attempt %d)", logcolors.LogHTTP, req.Method, req.URL.Host, attempt)
		}
	}
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Client{
		httpClient: retryClient,
		limiter:    rate.NewLimiter(limit, opts.Burst),
		userAgent:  opts.UserAgent,
	}
}

// NewFromConfig creates a client from the HTTP settings in cfg
func NewFromConfig(cfg config.Config) *Client {
	return NewClient(Options{
		Timeout:       cfg.HTTPTimeout(),
		RetryMax:      cfg.Configuration.HTTPRetryMax,
		RatePerSecond: float64(cfg.Configuration.ProviderRateLimitPerSecond),
		Burst:         cfg.Configuration.ProviderRateLimitBurst,
		UserAgent:     cfg.Configuration.UserAgent,
	})
}

// Get performs a GET request. header may be nil. A non-2xx status is not an error.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, header)
}

// Do performs a body-less request after waiting for the rate limiter. The User-Agent from
// the options is set unless header already carries one.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Debugf("%s %s %s -> %d in %v", logcolors.LogHTTP, method, req.URL.Host, resp.StatusCode, time.Since(start))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// GetJSON performs a GET request and decodes a 2xx body into v.
// Other statuses return a *StatusError.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, v interface{}) error {
	resp, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return resp.DecodeJSON(v)
}

// StandardClient returns an *http.Client backed by the retrying transport, for libraries
// that take a plain client. Requests through it are not paced.
func (c *Client) StandardClient() *http.Client {
	return c.httpClient.StandardClient()
}
