// Package transport builds the HTTP clients used for API calls.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultAPIBase is the v2 REST root for signed calls.
	DefaultAPIBase = "https://api.x.com/2"
	// DefaultWebBase is the web client origin for cookie-authenticated reads.
	DefaultWebBase = "https://x.com"

	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Doer sends one request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns a pooled client with an overall timeout. Per-call
// deadlines come from the request context; timeout is the backstop.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: cleanhttp.DefaultPooledTransport(),
		Timeout:   timeout,
	}
}

type LeveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type Option func(*retryablehttp.Client)

func WithMaxRetries(n int) Option {
	return func(c *retryablehttp.Client) { c.RetryMax = n }
}

func WithRetryWait(min, max time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	}
}

// NewRetryingClient is for idempotent GETs that are safe to repeat (page
// and bundle fetches). Never use it for signed writes.
//
// Retries connection errors and 5xx (except 501). 429 is left to the caller.
func NewRetryingClient(options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: slog.Default().With("component", "http")})
	retryClient.CheckRetry = RetryPolicy

	for _, option := range options {
		option(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = 30 * time.Second
	return client
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy but treats
// 429 Too Many Requests as final.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
