package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxImages is the per-post image cap; a video or GIF must stand alone.
const MaxImages = 4

type MediaKind int

const (
	KindImage MediaKind = iota + 1
	KindGIF
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindGIF:
		return "gif"
	case KindVideo:
		return "video"
	}
	return "unknown"
}

// Category is the media_category the upload endpoints expect.
func (k MediaKind) Category() string {
	switch k {
	case KindGIF:
		return "tweet_gif"
	case KindVideo:
		return "tweet_video"
	}
	return "tweet_image"
}

type MediaAttachment struct {
	Path    string
	Kind    MediaKind
	MediaID string // set once uploaded
}

// PostSpec is one post to submit: text, 0..4 attachments, optional quote
// and optional reply target.
type PostSpec struct {
	Text    string
	Media   []MediaAttachment
	QuoteID string
	ReplyTo string
}

// PostRecord is a submitted post as kept in the local ledger.
type PostRecord struct {
	PostID   string
	Text     string
	ReplyTo  string
	QuoteID  string
	ThreadID string // first post id of the thread, empty for single posts
	Position int
	MediaIDs []string
	PostedAt time.Time
}

var reStatusID = regexp.MustCompile(`/status(?:es)?/(\d+)`)
var reDigits = regexp.MustCompile(`^\d+$`)

// ParsePostID accepts a bare id or a status URL and returns the id.
func ParsePostID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if reDigits.MatchString(s) {
		return s, true
	}
	if m := reStatusID.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// --- v2 create post ---

type PostRequest struct {
	Text         string     `json:"text,omitempty"`
	Media        *PostMedia `json:"media,omitempty"`
	Reply        *PostReply `json:"reply,omitempty"`
	QuoteTweetID string     `json:"quote_tweet_id,omitempty"`
}
type PostMedia struct {
	MediaIDs []string `json:"media_ids"`
}
type PostReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}
type PostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// NewPostRequest maps a spec with uploaded media to the wire body.
func NewPostRequest(spec PostSpec) PostRequest {
	req := PostRequest{Text: spec.Text, QuoteTweetID: spec.QuoteID}
	if len(spec.Media) > 0 {
		ids := make([]string, 0, len(spec.Media))
		for _, m := range spec.Media {
			ids = append(ids, m.MediaID)
		}
		req.Media = &PostMedia{MediaIDs: ids}
	}
	if spec.ReplyTo != "" {
		req.Reply = &PostReply{InReplyToTweetID: spec.ReplyTo}
	}
	return req
}

// --- v2 media upload ---

type MediaInitRequest struct {
	TotalBytes    int64  `json:"total_bytes"`
	MediaType     string `json:"media_type"`
	MediaCategory string `json:"media_category"`
}

// ProcessingInfo states: pending, in_progress, succeeded, failed.
type ProcessingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	ProgressPct    int    `json:"progress_percent"`
	Error          *ProcessingError `json:"error,omitempty"`
}

type ProcessingError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

const (
	StatePending    = "pending"
	StateInProgress = "in_progress"
	StateSucceeded  = "succeeded"
	StateFailed     = "failed"
)

type mediaData struct {
	ID             string          `json:"id"`
	MediaKey       string          `json:"media_key"`
	ProcessingInfo *ProcessingInfo `json:"processing_info,omitempty"`
}

// MediaUploadResp covers the v2 envelope and the legacy v1.1 shape.
type MediaUploadResp struct {
	Data           *mediaData      `json:"data,omitempty"`
	ID             string          `json:"id"`
	MediaID        int64           `json:"media_id"`
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *ProcessingInfo `json:"processing_info,omitempty"`
}

func (r MediaUploadResp) MediaIdentifier() string {
	switch {
	case r.Data != nil && r.Data.ID != "":
		return r.Data.ID
	case r.ID != "":
		return r.ID
	case r.MediaIDString != "":
		return r.MediaIDString
	case r.MediaID != 0:
		return strconv.FormatInt(r.MediaID, 10)
	}
	return ""
}

func (r MediaUploadResp) Processing() *ProcessingInfo {
	if r.Data != nil && r.Data.ProcessingInfo != nil {
		return r.Data.ProcessingInfo
	}
	return r.ProcessingInfo
}

// --- v2 users and reads ---

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type UserResp struct {
	Data User `json:"data"`
}

type PublicMetrics struct {
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
}

type V2Tweet struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	AuthorID      string        `json:"author_id"`
	CreatedAt     string        `json:"created_at"`
	PublicMetrics PublicMetrics `json:"public_metrics"`
}

type TweetsResp struct {
	Data     []V2Tweet `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
}

type DMEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Text      string `json:"text"`
	SenderID  string `json:"sender_id"`
	CreatedAt string `json:"created_at"`
}

type DMEventsResp struct {
	Data     []DMEvent `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
}

// Usernames maps user id to handle from an includes block.
func Usernames(users []User) map[string]string {
	out := make(map[string]string, len(users))
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out
}

// --- cookie-authenticated reads ---

type Tweet struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Author       Profile   `json:"author"`
	RetweetedBy  string    `json:"retweetedBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ReplyCount   int       `json:"replyCount"`
	LikeCount    int       `json:"likeCount"`
	RetweetCount int       `json:"retweetCount"`
	ViewCount    int       `json:"viewCount"`
}

type Profile struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	Followers int    `json:"followers,omitempty"`
	Following int    `json:"following,omitempty"`
}
