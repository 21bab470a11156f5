package session

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/araddon/dateparse"

	"github.com/mikequentel/xcli/internal/model"
)

// Web client GraphQL response shapes, reduced to the fields the CLI prints.

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
}

type entry struct {
	EntryID string `json:"entryId"`
	Content struct {
		ItemContent *itemContent `json:"itemContent"`
		Items       []struct {
			Item struct {
				ItemContent *itemContent `json:"itemContent"`
			} `json:"item"`
		} `json:"items"`
	} `json:"content"`
}

type itemContent struct {
	ItemType     string `json:"itemType"`
	TweetResults struct {
		Result *tweetResult `json:"result"`
	} `json:"tweet_results"`
	UserResults struct {
		Result *userResult `json:"result"`
	} `json:"user_results"`
}

type tweetResult struct {
	Typename string       `json:"__typename"`
	RestID   string       `json:"rest_id"`
	Tweet    *tweetResult `json:"tweet"` // TweetWithVisibilityResults
	Core     struct {
		UserResults struct {
			Result *userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy struct {
		IDStr                 string `json:"id_str"`
		FullText              string `json:"full_text"`
		CreatedAt             string `json:"created_at"`
		ReplyCount            int    `json:"reply_count"`
		FavoriteCount         int    `json:"favorite_count"`
		RetweetCount          int    `json:"retweet_count"`
		RetweetedStatusResult struct {
			Result *tweetResult `json:"result"`
		} `json:"retweeted_status_result"`
	} `json:"legacy"`
	Views struct {
		Count flexInt `json:"count"`
	} `json:"views"`
}

type userResult struct {
	RestID string `json:"rest_id"`
	Core   struct {
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
	} `json:"core"`
	Legacy struct {
		ScreenName     string `json:"screen_name"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		FollowersCount int    `json:"followers_count"`
		FriendsCount   int    `json:"friends_count"`
	} `json:"legacy"`
}

// flexInt accepts 12, "12" or null.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*n = flexInt(t)
	case string:
		i, _ := strconv.Atoi(t)
		*n = flexInt(i)
	}
	return nil
}

// unwrap follows TweetWithVisibilityResults to the tweet inside.
func (t *tweetResult) unwrap() *tweetResult {
	if t != nil && t.Typename == "TweetWithVisibilityResults" && t.Tweet != nil {
		return t.Tweet
	}
	return t
}

func (u *userResult) profile() model.Profile {
	if u == nil {
		return model.Profile{}
	}
	p := model.Profile{
		ID:        u.RestID,
		Username:  u.Core.ScreenName,
		Name:      u.Core.Name,
		Bio:       u.Legacy.Description,
		Followers: u.Legacy.FollowersCount,
		Following: u.Legacy.FriendsCount,
	}
	// older responses only carry the legacy block
	if p.Username == "" {
		p.Username = u.Legacy.ScreenName
	}
	if p.Name == "" {
		p.Name = u.Legacy.Name
	}
	return p
}

// toTweet flattens a result. A retweet becomes the original post with
// RetweetedBy set. Results without text are dropped.
func (t *tweetResult) toTweet() (model.Tweet, bool) {
	r := t.unwrap()
	if r == nil {
		return model.Tweet{}, false
	}
	author := r.Core.UserResults.Result.profile()
	var retweetedBy string

	if rt := r.Legacy.RetweetedStatusResult.Result.unwrap(); rt != nil {
		retweetedBy = author.Username
		r = rt
		author = r.Core.UserResults.Result.profile()
	}
	if r.Legacy.FullText == "" {
		return model.Tweet{}, false
	}
	id := r.Legacy.IDStr
	if id == "" {
		id = r.RestID
	}
	return model.Tweet{
		ID:           id,
		Text:         r.Legacy.FullText,
		Author:       author,
		RetweetedBy:  retweetedBy,
		CreatedAt:    parseTime(r.Legacy.CreatedAt),
		ReplyCount:   r.Legacy.ReplyCount,
		LikeCount:    r.Legacy.FavoriteCount,
		RetweetCount: r.Legacy.RetweetCount,
		ViewCount:    int(r.Views.Count),
	}, true
}

// parseTime reads the web client's "Wed Oct 10 20:19:24 +0000 2018" as
// well as the RFC 3339 stamps of the v2 API. Unparseable input is zero.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RubyDate, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// findInstructions walks the response until it meets an "instructions"
// array; timelines nest it at different depths per operation.
func findInstructions(raw json.RawMessage) []instruction {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if v, ok := obj["instructions"]; ok {
		var out []instruction
		if err := json.Unmarshal(v, &out); err == nil {
			return out
		}
	}
	for _, v := range obj {
		if len(v) == 0 || v[0] != '{' {
			continue
		}
		if found := findInstructions(v); len(found) > 0 {
			return found
		}
	}
	return nil
}

func timelineItems(raw json.RawMessage) []*itemContent {
	var items []*itemContent
	for _, in := range findInstructions(raw) {
		if in.Type != "TimelineAddEntries" {
			continue
		}
		for _, e := range in.Entries {
			if e.Content.ItemContent != nil {
				items = append(items, e.Content.ItemContent)
			}
			// conversation modules
			for _, it := range e.Content.Items {
				if it.Item.ItemContent != nil {
					items = append(items, it.Item.ItemContent)
				}
			}
		}
	}
	return items
}

// timelineTweets extracts the posts of a timeline response, in order.
func timelineTweets(raw json.RawMessage) []model.Tweet {
	var out []model.Tweet
	for _, ic := range timelineItems(raw) {
		if ic.ItemType != "TimelineTweet" {
			continue
		}
		if t, ok := ic.TweetResults.Result.toTweet(); ok {
			out = append(out, t)
		}
	}
	return out
}

// timelineUsers extracts the accounts of a follower/following response.
func timelineUsers(raw json.RawMessage) []model.Profile {
	var out []model.Profile
	for _, ic := range timelineItems(raw) {
		if ic.ItemType != "TimelineUser" {
			continue
		}
		if p := ic.UserResults.Result.profile(); p.Username != "" {
			out = append(out, p)
		}
	}
	return out
}

func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
