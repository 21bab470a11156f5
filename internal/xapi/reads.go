package xapi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mikequentel/xcli/internal/model"
)

// These endpoints are tier-restricted. A 403 or 404 surfaces as
// xerr.ErrForbidden / xerr.ErrNotAvailable and the caller decides whether to
// skip or report.

func (c *Client) RecentPosts(ctx context.Context, userID string, limit int) (*model.TweetsResp, error) {
	var out model.TweetsResp
	err := c.getJSON(ctx, "GET /2/users/{id}/tweets", "/users/"+url.PathEscape(userID)+"/tweets", url.Values{
		"max_results":  {strconv.Itoa(clamp(limit, 5, 100))},
		"tweet.fields": {"public_metrics,created_at"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Mentions(ctx context.Context, userID string, limit int) (*model.TweetsResp, error) {
	var out model.TweetsResp
	err := c.getJSON(ctx, "GET /2/users/{id}/mentions", "/users/"+url.PathEscape(userID)+"/mentions", url.Values{
		"max_results":  {strconv.Itoa(clamp(limit, 5, 100))},
		"tweet.fields": {"created_at,author_id"},
		"expansions":   {"author_id"},
		"user.fields":  {"username"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DMEvents(ctx context.Context, limit int) (*model.DMEventsResp, error) {
	var out model.DMEventsResp
	err := c.getJSON(ctx, "GET /2/dm_events", "/dm_events", url.Values{
		"max_results":     {strconv.Itoa(clamp(limit, 1, 100))},
		"dm_event.fields": {"created_at,sender_id,text"},
		"expansions":      {"sender_id"},
		"user.fields":     {"username"},
		"event_types":     {"MessageCreate"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
