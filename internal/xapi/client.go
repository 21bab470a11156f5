// Package xapi is the OAuth1-signed client for the v2 REST API: the compose
// call, the media upload endpoints and a few reads.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/oauth"
	"github.com/mikequentel/xcli/internal/transport"
	"github.com/mikequentel/xcli/internal/xerr"
)

// Per-call deadlines.
type Timeouts struct {
	Post   time.Duration
	Upload time.Duration // single-call image upload
	Append time.Duration
	Media  time.Duration // initialize, finalize, status
	Read   time.Duration
}

var DefaultTimeouts = Timeouts{
	Post:   10 * time.Second,
	Upload: 60 * time.Second,
	Append: 120 * time.Second,
	Media:  30 * time.Second,
	Read:   10 * time.Second,
}

type Client struct {
	creds    oauth.Credentials
	http     transport.Doer
	signer   *oauth.Signer
	base     string
	timeouts Timeouts
	logger   *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(d transport.Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithBaseURL points the client at another API root, eg: a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

func WithTimeouts(t Timeouts) Option {
	return func(c *Client) { c.timeouts = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithSignerOptions(opts ...oauth.Option) Option {
	return func(c *Client) {
		// creds were validated by New
		c.signer, _ = oauth.NewSigner(c.creds, opts...)
	}
}

// New fails with ErrInvalidCredentials before any request can be built.
func New(creds oauth.Credentials, opts ...Option) (*Client, error) {
	signer, err := oauth.NewSigner(creds)
	if err != nil {
		return nil, err
	}
	c := &Client{
		creds:    creds,
		signer:   signer,
		base:     transport.DefaultAPIBase,
		timeouts: DefaultTimeouts,
		logger:   slog.Default().With("component", "xapi"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = transport.NewClient(c.timeouts.Append + 10*time.Second)
	}
	return c, nil
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	timeout     time.Duration
}

// send signs and issues one request and reads the whole body. Transport
// failures come back as *xerr.NetworkError; status handling is the caller's.
func (c *Client) send(ctx context.Context, r request) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := c.base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", r.op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	c.signer.SignRequest(req, nil)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &xerr.NetworkError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &xerr.NetworkError{Op: r.op, Err: err}
	}
	c.logger.Debug("api call", "op", r.op, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, body, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// getJSON issues a signed GET and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	resp, body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: path, query: query, timeout: c.timeouts.Read})
	if err != nil {
		return err
	}
	if !ok(resp) {
		return xerr.FromResponse(resp, body, op)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// CreatePost issues the compose call. It is never retried.
func (c *Client) CreatePost(ctx context.Context, post model.PostRequest) (string, error) {
	const op = "POST /2/tweets"
	raw, err := json.Marshal(post)
	if err != nil {
		return "", err
	}
	resp, body, err := c.send(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/tweets",
		body:        bytes.NewReader(raw),
		contentType: "application/json",
		timeout:     c.timeouts.Post,
	})
	if err != nil {
		return "", err
	}
	if !ok(resp) {
		return "", &xerr.PostRejectedError{StatusCode: resp.StatusCode, Message: xerr.Message(body)}
	}
	var out model.PostResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%s: decode: %w", op, err)
	}
	if out.Data.ID == "" {
		return "", errors.New("create post: response missing data.id")
	}
	return out.Data.ID, nil
}

// VerifyCredentials returns the account the credentials belong to.
func (c *Client) VerifyCredentials(ctx context.Context) (*model.User, error) {
	var out model.UserResp
	if err := c.getJSON(ctx, "GET /2/users/me", "/users/me", url.Values{"user.fields": {"id,username,name"}}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}
