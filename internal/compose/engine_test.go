package compose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

// fakePlatform records uploads and compose calls in one ordered log.
type fakePlatform struct {
	log      []string
	posts    []model.PostRequest
	failPost map[int]error // 1-based compose call -> error
	nextID   int
}

func (f *fakePlatform) Upload(ctx context.Context, path string, kind model.MediaKind) (string, error) {
	f.log = append(f.log, "upload "+filepath.Base(path))
	return "m-" + filepath.Base(path), nil
}

func (f *fakePlatform) CreatePost(ctx context.Context, post model.PostRequest) (string, error) {
	f.posts = append(f.posts, post)
	n := len(f.posts)
	f.log = append(f.log, "post "+strconv.Itoa(n))
	if err := f.failPost[n]; err != nil {
		return "", err
	}
	f.nextID++
	return strconv.Itoa(1000 + f.nextID), nil
}

type memRecorder struct {
	recs []model.PostRecord
	err  error
}

func (m *memRecorder) RecordPost(ctx context.Context, rec model.PostRecord) error {
	m.recs = append(m.recs, rec)
	return m.err
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func textThread(texts ...string) []model.PostSpec {
	out := make([]model.PostSpec, len(texts))
	for i, t := range texts {
		out[i] = model.PostSpec{Text: t}
	}
	return out
}

// ===================== Validate =====================

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	img := touch(t, dir, "a.png")
	vid := touch(t, dir, "v.mp4")

	tests := []struct {
		name string
		spec model.PostSpec
		want error
	}{
		{"text only", model.PostSpec{Text: "hi"}, nil},
		{"media only", model.PostSpec{Media: []model.MediaAttachment{{Path: img}}}, nil},
		{"empty", model.PostSpec{Text: "   "}, xerr.ErrInvalidPost},
		{"exactly 280", model.PostSpec{Text: strings.Repeat("a", 280)}, nil},
		{"281", model.PostSpec{Text: strings.Repeat("a", 281)}, xerr.ErrInvalidPost},
		// e + combining acute is one grapheme of two runes
		{"280 graphemes", model.PostSpec{Text: strings.Repeat("e\u0301", 280)}, nil},
		{"quote url", model.PostSpec{Text: "q", QuoteID: "https://x.com/a/status/123"}, nil},
		{"bad quote", model.PostSpec{Text: "q", QuoteID: "nope"}, xerr.ErrInvalidPost},
		{"unsupported ext", model.PostSpec{Text: "x", Media: []model.MediaAttachment{{Path: "a.bmp"}}}, xerr.ErrInvalidAttachment},
		{"image plus video", model.PostSpec{Text: "x", Media: []model.MediaAttachment{{Path: img}, {Path: vid}}}, xerr.ErrInvalidAttachment},
		{"five images", model.PostSpec{Text: "x", Media: []model.MediaAttachment{{Path: img}, {Path: img}, {Path: img}, {Path: img}, {Path: img}}}, xerr.ErrInvalidAttachment},
		{"missing file", model.PostSpec{Text: "x", Media: []model.MediaAttachment{{Path: filepath.Join(dir, "gone.png")}}}, xerr.ErrInvalidAttachment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

// ===================== SubmitPost =====================

func TestSubmitPost_UploadsInOrderThenPosts(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "b.png")
	b := touch(t, dir, "a.jpg")
	fake := &fakePlatform{}
	rec := &memRecorder{}
	e := New(fake, fake, WithRecorder(rec))

	id, err := e.SubmitPost(context.Background(), model.PostSpec{
		Text:    "two pics",
		Media:   []model.MediaAttachment{{Path: a}, {Path: b}},
		QuoteID: "https://x.com/someone/status/555",
	})
	require.NoError(t, err)
	assert.Equal(t, "1001", id)
	assert.Equal(t, []string{"upload b.png", "upload a.jpg", "post 1"}, fake.log)

	require.Len(t, fake.posts, 1)
	assert.Equal(t, []string{"m-b.png", "m-a.jpg"}, fake.posts[0].Media.MediaIDs)
	assert.Equal(t, "555", fake.posts[0].QuoteTweetID)
	assert.Nil(t, fake.posts[0].Reply)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, "1001", rec.recs[0].PostID)
	assert.Equal(t, []string{"m-b.png", "m-a.jpg"}, rec.recs[0].MediaIDs)
	assert.Equal(t, "555", rec.recs[0].QuoteID)
}

func TestSubmitPost_InvalidAttachmentMakesNoCalls(t *testing.T) {
	dir := t.TempDir()
	fake := &fakePlatform{}
	e := New(fake, fake)

	_, err := e.SubmitPost(context.Background(), model.PostSpec{
		Text:  "nope",
		Media: []model.MediaAttachment{{Path: touch(t, dir, "a.png")}, {Path: touch(t, dir, "b.gif")}},
	})
	require.ErrorIs(t, err, xerr.ErrInvalidAttachment)
	assert.Empty(t, fake.log)
}

func TestSubmitPost_RecorderFailureIsNotFatal(t *testing.T) {
	fake := &fakePlatform{}
	e := New(fake, fake, WithRecorder(&memRecorder{err: errors.New("disk full")}))

	id, err := e.SubmitPost(context.Background(), model.PostSpec{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1001", id)
}

func TestSubmitPost_Rejected(t *testing.T) {
	fake := &fakePlatform{failPost: map[int]error{1: &xerr.PostRejectedError{StatusCode: 403, Message: "duplicate content"}}}
	e := New(fake, fake)

	_, err := e.SubmitPost(context.Background(), model.PostSpec{Text: "hi"})
	var rej *xerr.PostRejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "duplicate content", rej.Message)
}

// ===================== SubmitThread =====================

func TestSubmitThread_ReplyChaining(t *testing.T) {
	fake := &fakePlatform{}
	rec := &memRecorder{}
	e := New(fake, fake, WithRecorder(rec))

	ids, err := e.SubmitThread(context.Background(), textThread("one", "two", "three"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1001", "1002", "1003"}, ids)

	require.Len(t, fake.posts, 3)
	assert.Nil(t, fake.posts[0].Reply)
	assert.Equal(t, "1001", fake.posts[1].Reply.InReplyToTweetID)
	assert.Equal(t, "1002", fake.posts[2].Reply.InReplyToTweetID)

	require.Len(t, rec.recs, 3)
	for i, r := range rec.recs {
		assert.Equal(t, "1001", r.ThreadID)
		assert.Equal(t, i+1, r.Position)
	}
}

func TestSubmitThread_PartialFailure(t *testing.T) {
	cause := &xerr.PostRejectedError{StatusCode: 429, Message: "Too Many Requests"}
	fake := &fakePlatform{failPost: map[int]error{2: cause}}
	e := New(fake, fake)

	ids, err := e.SubmitThread(context.Background(), textThread("one", "two", "three"))
	assert.Equal(t, []string{"1001"}, ids)

	var te *xerr.ThreadError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Entry)
	assert.Equal(t, []string{"1001"}, te.Posted)
	assert.ErrorIs(t, err, xerr.ErrRateLimited)

	// entry 3 is never attempted
	assert.Len(t, fake.posts, 2)
	assert.Equal(t, []string{"post 1", "post 2"}, fake.log)
}

func TestSubmitThread_FirstEntryFails(t *testing.T) {
	fake := &fakePlatform{failPost: map[int]error{1: &xerr.NetworkError{Op: "POST /2/tweets", Err: errors.New("reset")}}}
	e := New(fake, fake)

	ids, err := e.SubmitThread(context.Background(), textThread("one", "two"))
	assert.Empty(t, ids)
	var te *xerr.ThreadError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Entry)
	assert.ErrorIs(t, err, xerr.ErrNetwork)
}

func TestSubmitThread_ValidationBeforeNetwork(t *testing.T) {
	fake := &fakePlatform{}
	e := New(fake, fake)

	specs := textThread("one", "two", strings.Repeat("x", 300))
	_, err := e.SubmitThread(context.Background(), specs)
	require.ErrorIs(t, err, xerr.ErrInvalidPost)
	var se *xerr.SegmentError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Segment)
	assert.Empty(t, fake.log)
}

func TestSubmitThread_Pacing(t *testing.T) {
	fake := &fakePlatform{}
	e := New(fake, fake, WithPacing(20*time.Millisecond))

	start := time.Now()
	_, err := e.SubmitThread(context.Background(), textThread("a", "b", "c"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestSubmitThread_CancelledWhilePacing(t *testing.T) {
	fake := &fakePlatform{}
	e := New(fake, fake, WithPacing(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// the first post takes the only token; waiting for the second would
	// outlive the deadline, so it fails at once
	ids, err := e.SubmitThread(ctx, textThread("a", "b"))
	assert.Equal(t, []string{"1001"}, ids)
	var te *xerr.ThreadError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Entry)
}
