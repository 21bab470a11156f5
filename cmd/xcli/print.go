package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mikequentel/xcli/internal/model"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printTweets(w io.Writer, tweets []model.Tweet) {
	if len(tweets) == 0 {
		fmt.Fprintln(w, "no posts found")
		return
	}
	for _, t := range tweets {
		header := "@" + t.Author.Username
		if t.RetweetedBy != "" {
			header += " (reposted by @" + t.RetweetedBy + ")"
		}
		if !t.CreatedAt.IsZero() {
			header += " · " + t.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintln(w, header)
		for _, line := range strings.Split(t.Text, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
		fmt.Fprintf(w, "  replies: %d  likes: %d  reposts: %d  views: %d\n", t.ReplyCount, t.LikeCount, t.RetweetCount, t.ViewCount)
		fmt.Fprintf(w, "  %s\n\n", postURL(t.ID))
	}
}

func printProfile(w io.Writer, p model.Profile) {
	fmt.Fprintf(w, "@%s (%s)\n", p.Username, p.Name)
	if p.ID != "" {
		fmt.Fprintf(w, "  id: %s\n", p.ID)
	}
	if p.Bio != "" {
		fmt.Fprintf(w, "  %s\n", p.Bio)
	}
	fmt.Fprintf(w, "  followers: %d  following: %d\n", p.Followers, p.Following)
}

func printProfiles(w io.Writer, users []model.Profile) {
	if len(users) == 0 {
		fmt.Fprintln(w, "no accounts found")
		return
	}
	for _, u := range users {
		fmt.Fprintf(w, "@%-16s %s\n", u.Username, u.Name)
	}
}

// date keeps the day of an RFC 3339 stamp.
func date(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

func printRecentPosts(w io.Writer, resp *model.TweetsResp, err error) {
	fmt.Fprintln(w, "--- Recent Posts ---")
	switch {
	case err != nil:
		fmt.Fprintf(w, "  %s\n\n", skipMsg)
		return
	case resp == nil || len(resp.Data) == 0:
		fmt.Fprintln(w, "  no recent posts found")
		fmt.Fprintln(w)
		return
	}
	for _, t := range resp.Data {
		m := t.PublicMetrics
		fmt.Fprintf(w, "  %s\n", t.Text)
		fmt.Fprintf(w, "    replies: %d  likes: %d  reposts: %d\n", m.ReplyCount, m.LikeCount, m.RetweetCount)
	}
	fmt.Fprintln(w)
}

func printMentions(w io.Writer, resp *model.TweetsResp, err error) {
	fmt.Fprintln(w, "--- Recent Mentions ---")
	switch {
	case err != nil:
		fmt.Fprintf(w, "  %s\n\n", skipMsg)
		return
	case resp == nil || len(resp.Data) == 0:
		fmt.Fprintln(w, "  no recent mentions found")
		fmt.Fprintln(w)
		return
	}
	users := model.Usernames(resp.Includes.Users)
	for _, t := range resp.Data {
		fmt.Fprintf(w, "  @%s (%s): %s\n", usernameOr(users, t.AuthorID), date(t.CreatedAt), t.Text)
	}
	fmt.Fprintln(w)
}

func printDMs(w io.Writer, resp *model.DMEventsResp, err error) {
	fmt.Fprintln(w, "--- Recent DMs ---")
	switch {
	case err != nil:
		fmt.Fprintf(w, "  %s\n\n", skipMsg)
		return
	case resp == nil || len(resp.Data) == 0:
		fmt.Fprintln(w, "  no recent DMs found")
		fmt.Fprintln(w)
		return
	}
	users := model.Usernames(resp.Includes.Users)
	for _, ev := range resp.Data {
		fmt.Fprintf(w, "  @%s (%s): %s\n", usernameOr(users, ev.SenderID), date(ev.CreatedAt), ev.Text)
	}
	fmt.Fprintln(w)
}

func usernameOr(users map[string]string, id string) string {
	if u, ok := users[id]; ok && u != "" {
		return u
	}
	return "unknown"
}

func printHistory(w io.Writer, recs []model.PostRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "nothing posted yet")
		return
	}
	for _, r := range recs {
		var tags []string
		if r.ThreadID != "" {
			tags = append(tags, fmt.Sprintf("thread %s #%d", r.ThreadID, r.Position))
		}
		if r.QuoteID != "" {
			tags = append(tags, "quotes "+r.QuoteID)
		}
		if n := len(r.MediaIDs); n > 0 {
			tags = append(tags, fmt.Sprintf("%d media", n))
		}
		line := r.PostedAt.Local().Format("2006-01-02 15:04") + "  " + postURL(r.PostID)
		if len(tags) > 0 {
			line += "  [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "  %s\n", firstLine(r.Text))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
