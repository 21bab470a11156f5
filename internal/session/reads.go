package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

// Search returns the latest posts matching q.
func (c *Client) Search(ctx context.Context, q string, count int) ([]model.Tweet, error) {
	data, err := c.graphql(ctx, "SearchTimeline", map[string]any{
		"rawQuery":    q,
		"count":       count,
		"querySource": "typed_query",
		"product":     "Latest",
	})
	if err != nil {
		return nil, err
	}
	return limit(timelineTweets(data), count), nil
}

// Home is the signed-in account's chronological timeline.
func (c *Client) Home(ctx context.Context, count int) ([]model.Tweet, error) {
	data, err := c.graphql(ctx, "HomeLatestTimeline", map[string]any{
		"count":                  count,
		"includePromotedContent": false,
	})
	if err != nil {
		return nil, err
	}
	return limit(timelineTweets(data), count), nil
}

// ReadPost fetches one post by id or status URL.
func (c *Client) ReadPost(ctx context.Context, idOrURL string) (model.Tweet, error) {
	id, ok := model.ParsePostID(idOrURL)
	if !ok {
		return model.Tweet{}, fmt.Errorf("%w: %q is not a post id or status URL", xerr.ErrInvalidPost, idOrURL)
	}
	data, err := c.graphql(ctx, "TweetDetail", map[string]any{
		"focalTweetId":                           id,
		"with_rux_injections":                    false,
		"includePromotedContent":                 false,
		"withCommunity":                          true,
		"withQuickPromoteEligibilityTweetFields": false,
		"withBirdwatchNotes":                     true,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	})
	if err != nil {
		return model.Tweet{}, err
	}
	tweets := timelineTweets(data)
	if len(tweets) == 0 {
		return model.Tweet{}, fmt.Errorf("%w: post %s", xerr.ErrNotAvailable, id)
	}
	// the conversation also holds replies and ancestors
	for _, t := range tweets {
		if t.ID == id {
			return t, nil
		}
	}
	return tweets[0], nil
}

func (c *Client) Bookmarks(ctx context.Context, count int) ([]model.Tweet, error) {
	data, err := c.graphql(ctx, "Bookmarks", map[string]any{
		"count":                  count,
		"includePromotedContent": false,
	})
	if err != nil {
		return nil, err
	}
	return limit(timelineTweets(data), count), nil
}

func userVars(userID string, count int) map[string]any {
	return map[string]any{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
	}
}

func (c *Client) Likes(ctx context.Context, userID string, count int) ([]model.Tweet, error) {
	data, err := c.graphql(ctx, "Likes", userVars(userID, count))
	if err != nil {
		return nil, err
	}
	return limit(timelineTweets(data), count), nil
}

func (c *Client) Followers(ctx context.Context, userID string, count int) ([]model.Profile, error) {
	data, err := c.graphql(ctx, "Followers", userVars(userID, count))
	if err != nil {
		return nil, err
	}
	return limit(timelineUsers(data), count), nil
}

func (c *Client) Following(ctx context.Context, userID string, count int) ([]model.Profile, error) {
	data, err := c.graphql(ctx, "Following", userVars(userID, count))
	if err != nil {
		return nil, err
	}
	return limit(timelineUsers(data), count), nil
}

// UserByScreenName resolves a handle, with or without @, to a profile.
func (c *Client) UserByScreenName(ctx context.Context, handle string) (model.Profile, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	data, err := c.graphql(ctx, "UserByScreenName", map[string]any{
		"screen_name":              handle,
		"withSafetyModeUserFields": true,
	})
	if err != nil {
		return model.Profile{}, err
	}
	var resp struct {
		Data struct {
			User struct {
				Result *userResult `json:"result"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return model.Profile{}, fmt.Errorf("GraphQL UserByScreenName: decoding response: %w", err)
	}
	p := resp.Data.User.Result.profile()
	if p.ID == "" {
		return model.Profile{}, fmt.Errorf("%w: user @%s not found", xerr.ErrNotAvailable, handle)
	}
	return p, nil
}

// UserPosts lists a handle's recent posts.
func (c *Client) UserPosts(ctx context.Context, handle string, count int) ([]model.Tweet, error) {
	u, err := c.UserByScreenName(ctx, handle)
	if err != nil {
		return nil, err
	}
	vars := userVars(u.ID, count)
	vars["withQuickPromoteEligibilityTweetFields"] = false
	vars["withVoice"] = true
	vars["withV2Timeline"] = true
	data, err := c.graphql(ctx, "UserTweets", vars)
	if err != nil {
		return nil, err
	}
	return limit(timelineTweets(data), count), nil
}

// Mentions searches for posts addressed to username.
func (c *Client) Mentions(ctx context.Context, username string, count int) ([]model.Tweet, error) {
	return c.Search(ctx, "to:"+strings.TrimPrefix(username, "@"), count)
}
