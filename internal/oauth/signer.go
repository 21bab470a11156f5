// Package oauth signs platform requests with OAuth 1.0a HMAC-SHA1.
package oauth

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"

	"github.com/mikequentel/xcli/internal/xerr"
)

const (
	signatureMethod = "HMAC-SHA1"
	version         = "1.0"
)

// Credentials are the four app/user secrets. They are passed explicitly to
// the signer and never held in package state.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Validate fails with ErrInvalidCredentials naming every empty secret.
func (c Credentials) Validate() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"consumer_key", c.ConsumerKey},
		{"consumer_secret", c.ConsumerSecret},
		{"access_token", c.AccessToken},
		{"access_token_secret", c.AccessTokenSecret},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return xerr.MissingFields(missing)
	}
	return nil
}

// PercentEncode escapes everything outside the RFC 3986 unreserved set.
func PercentEncode(s string) string { return oauth1.PercentEncode(s) }

type pair struct{ k, v string }

// Sign returns the Authorization header value for one request. It is a
// pure function of its inputs.
func Sign(method, rawURL string, params map[string]string, creds Credentials, nonce string, timestamp int64) string {
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, pair{k, v})
	}
	return sign(method, rawURL, pairs, creds, nonce, timestamp)
}

func sign(method, rawURL string, params []pair, creds Credentials, nonce string, timestamp int64) string {
	oauthParams := []pair{
		{"oauth_consumer_key", creds.ConsumerKey},
		{"oauth_nonce", nonce},
		{"oauth_signature_method", signatureMethod},
		{"oauth_timestamp", strconv.FormatInt(timestamp, 10)},
		{"oauth_token", creds.AccessToken},
		{"oauth_version", version},
	}

	base := signatureBase(method, rawURL, append(append([]pair{}, params...), oauthParams...))
	signer := &oauth1.HMACSigner{ConsumerSecret: PercentEncode(creds.ConsumerSecret)}
	// HMAC over a string cannot fail
	signature, _ := signer.Sign(PercentEncode(creds.AccessTokenSecret), base)

	header := append(oauthParams, pair{"oauth_signature", signature})
	sort.Slice(header, func(i, j int) bool { return header[i].k < header[j].k })
	parts := make([]string, 0, len(header))
	for _, p := range header {
		parts = append(parts, PercentEncode(p.k)+`="`+PercentEncode(p.v)+`"`)
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// signatureBase builds METHOD&enc(url)&enc(sorted params).
func signatureBase(method, rawURL string, params []pair) string {
	enc := make([]pair, 0, len(params))
	for _, p := range params {
		enc = append(enc, pair{PercentEncode(p.k), PercentEncode(p.v)})
	}
	sort.Slice(enc, func(i, j int) bool {
		if enc[i].k != enc[j].k {
			return enc[i].k < enc[j].k
		}
		return enc[i].v < enc[j].v
	})
	kv := make([]string, 0, len(enc))
	for _, p := range enc {
		kv = append(kv, p.k+"="+p.v)
	}
	return strings.ToUpper(method) + "&" + PercentEncode(rawURL) + "&" + PercentEncode(strings.Join(kv, "&"))
}

// Signer signs requests with fresh nonces and timestamps.
type Signer struct {
	creds Credentials
	nonce func() string
	now   func() time.Time
}

type Option func(*Signer)

// WithNonce replaces the random nonce source, eg: for tests.
func WithNonce(f func() string) Option {
	return func(s *Signer) { s.nonce = f }
}

// WithClock replaces time.Now.
func WithClock(f func() time.Time) Option {
	return func(s *Signer) { s.now = f }
}

// NewSigner validates creds before anything can be signed.
func NewSigner(creds Credentials, opts ...Option) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	s := &Signer{creds: creds, nonce: newNonce, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Authorization signs method+url+params with a fresh nonce and timestamp.
func (s *Signer) Authorization(method, rawURL string, params map[string]string) string {
	return Sign(method, rawURL, params, s.creds, s.nonce(), s.now().Unix())
}

// SignRequest sets the Authorization header. Query parameters of req.URL
// and form are signed; JSON and multipart bodies never are.
func (s *Signer) SignRequest(req *http.Request, form url.Values) {
	var params []pair
	for k, vs := range req.URL.Query() {
		for _, v := range vs {
			params = append(params, pair{k, v})
		}
	}
	for k, vs := range form {
		for _, v := range vs {
			params = append(params, pair{k, v})
		}
	}
	req.Header.Set("Authorization", sign(req.Method, BaseURL(req.URL), params, s.creds, s.nonce(), s.now().Unix()))
}

// BaseURL is the scheme://host/path form used in the signature base.
func BaseURL(u *url.URL) string {
	host := strings.ToLower(u.Host)
	scheme := strings.ToLower(u.Scheme)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	return scheme + "://" + host + u.EscapedPath()
}
