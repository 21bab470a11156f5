// Package session reads from the platform the way its web client does:
// GraphQL GETs authenticated by the browser's auth_token and ct0 cookies.
package session

import (
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

	"github.com/dghubble/go-twitter/twitter"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"

	"github.com/mikequentel/xcli/internal/credentials"
	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/transport"
	"github.com/mikequentel/xcli/internal/xerr"
)

const (
	DefaultGraphQLBase = "https://x.com/i/api/graphql"
	DefaultRESTBase    = "https://api.x.com/1.1"

	// Public token of the web client, not tied to an account.
	bearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs" +
		"%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	graphqlTimeout = 15 * time.Second
	whoamiTimeout  = 10 * time.Second
)

// Feature flags most timeline operations insist on.
var defaultFeatures = map[string]bool{
	"rweb_tipjar_consumption_enabled":                                         true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"articles_preview_enabled":                                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"rweb_video_timestamps_enabled":                                           true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_enhance_cards_enabled":                                    false,
	"tweetypie_unmention_optimization_enabled":                                true,
	"vibe_api_enabled":                                                        true,
}

type graphqlParams struct {
	Variables string `url:"variables"`
	Features  string `url:"features"`
}

type Client struct {
	http        transport.Doer
	cookies     CookieSource
	resolver    *Resolver
	graphqlBase string
	restBase    string
	logger      *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(d transport.Doer) Option {
	return func(c *Client) { c.http = d }
}

func WithGraphQLBase(base string) Option {
	return func(c *Client) { c.graphqlBase = strings.TrimRight(base, "/") }
}

// WithRESTBase sets the v1.1 root used by Whoami.
func WithRESTBase(base string) Option {
	return func(c *Client) { c.restBase = strings.TrimRight(base, "/") }
}

func WithResolver(r *Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(cookies CookieSource, opts ...Option) *Client {
	c := &Client{
		cookies:     cookies,
		graphqlBase: DefaultGraphQLBase,
		restBase:    DefaultRESTBase,
		logger:      slog.Default().With("component", "session"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = transport.NewRetryingClient(transport.WithLogger(c.logger))
	}
	if c.resolver == nil {
		c.resolver = NewResolver(WithResolverHTTPClient(c.http))
	}
	return c
}

func setHeaders(req *http.Request, ck credentials.Cookies) {
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Cookie", "auth_token="+ck.AuthToken+"; ct0="+ck.CT0)
	req.Header.Set("x-csrf-token", ck.CT0)
	req.Header.Set("x-twitter-auth-type", "OAuth2Session")
	req.Header.Set("x-twitter-active-user", "yes")
	req.Header.Set("x-client-uuid", uuid.NewString())
	req.Header.Set("User-Agent", transport.UserAgent)
}

func (c *Client) get(ctx context.Context, op, u string, timeout time.Duration, ck credentials.Cookies) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	setHeaders(req, ck)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &xerr.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &xerr.NetworkError{Op: op, Err: err}
	}
	c.logger.Debug("graphql call", "op", op, "status", resp.StatusCode)
	return resp, body, nil
}

func expired(cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: log into x.com and run 'xcli login'", xerr.ErrSessionExpired)
	}
	return fmt.Errorf("%w: %w", xerr.ErrSessionExpired, cause)
}

// graphql runs op with each known query id until one answers. A 404 moves
// on to the next id; once every id has 404ed the ids are rediscovered one
// time. A 401 drops the cookies and retries once with fresh ones. 429 ends
// the call.
func (c *Client) graphql(ctx context.Context, op string, variables any) (json.RawMessage, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, err
	}
	feats, err := json.Marshal(defaultFeatures)
	if err != nil {
		return nil, err
	}
	params, err := query.Values(graphqlParams{Variables: string(vars), Features: string(feats)})
	if err != nil {
		return nil, err
	}

	ck, err := c.cookies.Cookies(ctx)
	if err != nil {
		return nil, err
	}

	ids := c.resolver.IDs(ctx, op)
	if len(ids) == 0 {
		return nil, fmt.Errorf("unknown GraphQL operation %q", op)
	}
	name := "GraphQL " + op
	var (
		lastErr   error
		saw404    bool
		refreshed bool
		renewed   bool
	)
	for i := 0; i < len(ids); i++ {
		u := c.graphqlBase + "/" + url.PathEscape(ids[i]) + "/" + op + "?" + params.Encode()
		resp, body, err := c.get(ctx, name, u, graphqlTimeout, ck)
		if err == nil && resp.StatusCode == http.StatusUnauthorized && !renewed {
			renewed = true
			if err := c.cookies.Invalidate(); err != nil {
				c.logger.Warn("could not clear cached session", "err", err)
			}
			if ck, err = c.cookies.Cookies(ctx); err != nil {
				return nil, expired(err)
			}
			resp, body, err = c.get(ctx, name, u, graphqlTimeout, ck)
		}

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, expired(nil)
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, xerr.FromResponse(resp, body, name)
		case resp.StatusCode == http.StatusNotFound:
			saw404 = true
			c.logger.Debug("query id rejected", "op", op, "id", ids[i])
			lastErr = xerr.FromResponse(resp, body, name)
		default:
			lastErr = xerr.FromResponse(resp, body, name)
		}

		if i == len(ids)-1 && saw404 && !refreshed {
			refreshed = true
			fresh, err := c.resolver.Refresh(ctx, op)
			if err != nil {
				c.logger.Warn("query id discovery failed", "op", op, "err", err)
			}
			ids = merge(ids, fresh)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s: every query id failed", name)
	}
	return nil, lastErr
}

// Whoami checks the session against the v1.1 REST API and returns the
// account it belongs to. A 401 clears the cached session.
func (c *Client) Whoami(ctx context.Context) (model.Profile, error) {
	ck, err := c.cookies.Cookies(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	const op = "GET /1.1/account/verify_credentials.json"
	resp, body, err := c.get(ctx, op, c.restBase+"/account/verify_credentials.json", whoamiTimeout, ck)
	if err != nil {
		return model.Profile{}, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		if err := c.cookies.Invalidate(); err != nil {
			c.logger.Warn("could not clear cached session", "err", err)
		}
		return model.Profile{}, expired(nil)
	default:
		return model.Profile{}, xerr.FromResponse(resp, body, op)
	}

	var u twitter.User
	if err := json.Unmarshal(body, &u); err != nil {
		return model.Profile{}, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if u.ScreenName == "" {
		return model.Profile{}, errors.New(op + ": response has no screen_name")
	}
	return model.Profile{
		ID:        u.IDStr,
		Username:  u.ScreenName,
		Name:      u.Name,
		Bio:       u.Description,
		Followers: u.FollowersCount,
		Following: u.FriendsCount,
	}, nil
}
