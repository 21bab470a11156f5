package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/oauth"
	"github.com/mikequentel/xcli/internal/xerr"
)

var testCreds = oauth.Credentials{
	ConsumerKey:       "ck",
	ConsumerSecret:    "cs",
	AccessToken:       "at",
	AccessTokenSecret: "as",
}

const (
	fixedNonce = "testnonce123"
	fixedTS    = int64(1700000000)
)

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithSignerOptions(
			oauth.WithNonce(func() string { return fixedNonce }),
			oauth.WithClock(func() time.Time { return time.Unix(fixedTS, 0) }),
		),
	}, opts...)
	c, err := New(testCreds, opts...)
	require.NoError(t, err)
	return c
}

// rewriteTransport redirects all HTTP requests to a local httptest server,
// so the default API base can be exercised.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(rt.target, "http://")
	return rt.base.RoundTrip(req)
}

// ===================== New =====================

func TestNew_InvalidCredentials(t *testing.T) {
	c := testCreds
	c.ConsumerSecret = ""
	_, err := New(c)
	require.ErrorIs(t, err, xerr.ErrInvalidCredentials)
}

// ===================== CreatePost =====================

func TestCreatePost_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		assert.Contains(t, r.Header.Get("Authorization"), `oauth_consumer_key="ck"`)

		var req model.PostRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "Hello world", req.Text)
		require.NotNil(t, req.Media)
		assert.Equal(t, []string{"m1", "m2"}, req.Media.MediaIDs)
		require.NotNil(t, req.Reply)
		assert.Equal(t, "41", req.Reply.InReplyToTweetID)
		assert.Equal(t, "40", req.QuoteTweetID)

		w.Write([]byte(`{"data":{"id":"9876543210","text":"Hello world"}}`))
	}))
	defer srv.Close()

	c, err := New(testCreds, WithHTTPClient(&http.Client{
		Transport: rewriteTransport{base: http.DefaultTransport, target: srv.URL},
	}))
	require.NoError(t, err)

	id, err := c.CreatePost(context.Background(), model.PostRequest{
		Text:         "Hello world",
		Media:        &model.PostMedia{MediaIDs: []string{"m1", "m2"}},
		Reply:        &model.PostReply{InReplyToTweetID: "41"},
		QuoteTweetID: "40",
	})
	require.NoError(t, err)
	assert.Equal(t, "9876543210", id)
}

func TestCreatePost_SignatureMatchesSigner(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// JSON bodies are not part of the signature.
		want := oauth.Sign("POST", srvURL+"/tweets", nil, testCreds, fixedNonce, fixedTS)
		assert.Equal(t, want, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, srv)
	_, err := c.CreatePost(context.Background(), model.PostRequest{Text: "x"})
	require.NoError(t, err)
}

func TestCreatePost_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		w.Write([]byte(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).CreatePost(context.Background(), model.PostRequest{Text: "dup"})
	var rej *xerr.PostRejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 403, rej.StatusCode)
	assert.Contains(t, rej.Message, "duplicate content")
	assert.ErrorIs(t, err, xerr.ErrForbidden)
}

func TestCreatePost_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.CreatePost(context.Background(), model.PostRequest{Text: "x"})
	require.ErrorIs(t, err, xerr.ErrNetwork)
}

func TestCreatePost_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	timeouts := DefaultTimeouts
	timeouts.Post = 50 * time.Millisecond
	_, err := newTestClient(t, srv, WithTimeouts(timeouts)).CreatePost(context.Background(), model.PostRequest{Text: "x"})
	require.ErrorIs(t, err, xerr.ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ===================== media =====================

func TestUploadSimple(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/media/upload", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tweet_image", r.FormValue("media_category"))
		f, hdr, err := r.FormFile("media")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "fake-image-data", string(data))
		assert.Equal(t, "a.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		w.Write([]byte(`{"data":{"id":"1234567890"}}`))
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).UploadSimple(context.Background(), "a.png", "image/png", "tweet_image", strings.NewReader("fake-image-data"))
	require.NoError(t, err)
	assert.Equal(t, "1234567890", id)
}

func TestUploadSimple_NumericFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"media_id":9999999999}`))
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).UploadSimple(context.Background(), "a.jpg", "image/jpeg", "tweet_image", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "9999999999", id)
}

func TestUploadSimple_MissingMediaID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadSimple(context.Background(), "a.jpg", "image/jpeg", "tweet_image", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing media_id")
}

func TestChunkedEndpoints(t *testing.T) {
	var srvURL string
	var segments []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/media/upload/initialize":
			var init model.MediaInitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&init))
			assert.Equal(t, model.MediaInitRequest{TotalBytes: 10, MediaType: "video/mp4", MediaCategory: "tweet_video"}, init)
			w.Write([]byte(`{"data":{"id":"77","media_key":"7_77"}}`))
		case r.URL.Path == "/media/upload/77/append":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			segments = append(segments, r.FormValue("segment_index"))
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/media/upload/77/finalize":
			w.Write([]byte(`{"data":{"id":"77","processing_info":{"state":"pending","check_after_secs":1}}}`))
		case r.URL.Path == "/media/upload" && r.Method == http.MethodGet:
			assert.Equal(t, "77", r.URL.Query().Get("media_id"))
			assert.Equal(t, "STATUS", r.URL.Query().Get("command"))
			want := oauth.Sign("GET", srvURL+"/media/upload", map[string]string{"command": "STATUS", "media_id": "77"}, testCreds, fixedNonce, fixedTS)
			assert.Equal(t, want, r.Header.Get("Authorization"))
			w.Write([]byte(`{"data":{"id":"77","processing_info":{"state":"succeeded"}}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, srv)
	ctx := context.Background()

	id, err := c.InitUpload(ctx, model.MediaInitRequest{TotalBytes: 10, MediaType: "video/mp4", MediaCategory: "tweet_video"})
	require.NoError(t, err)
	assert.Equal(t, "77", id)

	require.NoError(t, c.AppendChunk(ctx, id, 0, "video/mp4", []byte("01234")))
	require.NoError(t, c.AppendChunk(ctx, id, 1, "video/mp4", []byte("56789")))
	assert.Equal(t, []string{"0", "1"}, segments)

	info, err := c.FinalizeUpload(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, model.StatePending, info.State)

	info, err = c.UploadStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StateSucceeded, info.State)
}

func TestInitUpload_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"errors":[{"message":"total_bytes too large"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).InitUpload(context.Background(), model.MediaInitRequest{TotalBytes: 1 << 40})
	var apiErr *xerr.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "total_bytes too large")
}

// ===================== reads =====================

func TestVerifyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"12","username":"gopher","name":"Gopher"}}`))
	}))
	defer srv.Close()

	u, err := newTestClient(t, srv).VerifyCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12", u.ID)
	assert.Equal(t, "gopher", u.Username)
}

func TestTierRestrictedReads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dm_events":
			w.WriteHeader(403)
			w.Write([]byte(`{"title":"Forbidden","detail":"client-not-enrolled"}`))
		case "/users/12/mentions":
			w.Write([]byte(`{"data":[{"id":"5","text":"@gopher hi","author_id":"99","created_at":"2024-05-01T10:00:00Z"}],"includes":{"users":[{"id":"99","username":"alice"}]}}`))
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.DMEvents(context.Background(), 10)
	assert.ErrorIs(t, err, xerr.ErrForbidden)

	_, err = c.RecentPosts(context.Background(), "12", 5)
	assert.ErrorIs(t, err, xerr.ErrNotAvailable)

	m, err := c.Mentions(context.Background(), "12", 5)
	require.NoError(t, err)
	require.Len(t, m.Data, 1)
	assert.Equal(t, "alice", model.Usernames(m.Includes.Users)[m.Data[0].AuthorID])
}
