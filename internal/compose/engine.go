// Package compose submits posts and threads: it uploads attachments in
// order, then issues the signed compose call, chaining thread entries as
// replies.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rivo/uniseg"
	"golang.org/x/time/rate"

	"github.com/mikequentel/xcli/internal/media"
	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

// MaxChars is the post length limit, counted in grapheme clusters.
const MaxChars = 280

type Uploader interface {
	Upload(ctx context.Context, path string, kind model.MediaKind) (string, error)
}

type Poster interface {
	CreatePost(ctx context.Context, post model.PostRequest) (string, error)
}

// Recorder keeps a local copy of what was posted.
type Recorder interface {
	RecordPost(ctx context.Context, rec model.PostRecord) error
}

type Engine struct {
	uploader Uploader
	poster   Poster
	recorder Recorder
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithRecorder records every successful post. Recording failures are
// logged and never fail the submission.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithPacing spaces consecutive thread posts at least interval apart.
func WithPacing(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(uploader Uploader, poster Poster, opts ...Option) *Engine {
	e := &Engine{
		uploader: uploader,
		poster:   poster,
		logger:   slog.Default().With("component", "compose"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func graphemeLen(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}

// Validate checks a post locally. Nothing here touches the network.
func Validate(spec model.PostSpec) error {
	if strings.TrimSpace(spec.Text) == "" && len(spec.Media) == 0 {
		return fmt.Errorf("%w: text is required unless media is attached", xerr.ErrInvalidPost)
	}
	if n := graphemeLen(spec.Text); n > MaxChars {
		return fmt.Errorf("%w: %d characters, limit is %d", xerr.ErrInvalidPost, n, MaxChars)
	}
	if spec.QuoteID != "" {
		if _, ok := model.ParsePostID(spec.QuoteID); !ok {
			return fmt.Errorf("%w: quote reference %q is not a post id or URL", xerr.ErrInvalidPost, spec.QuoteID)
		}
	}

	kinds := make([]model.MediaKind, 0, len(spec.Media))
	paths := make([]string, 0, len(spec.Media))
	for _, m := range spec.Media {
		kind := m.Kind
		if kind == 0 {
			k, err := media.DetectKind(m.Path)
			if err != nil {
				return err
			}
			kind = k
		}
		kinds = append(kinds, kind)
		paths = append(paths, m.Path)
	}
	if err := media.ValidateKinds(kinds); err != nil {
		return err
	}
	return media.ValidateFiles(paths)
}

// SubmitPost validates spec, uploads its attachments one at a time in input
// order and posts it. It returns the new post id.
func (e *Engine) SubmitPost(ctx context.Context, spec model.PostSpec) (string, error) {
	if err := Validate(spec); err != nil {
		return "", err
	}
	id, sent, err := e.submit(ctx, spec)
	if err != nil {
		return "", err
	}
	e.record(ctx, sent, id, "", 0)
	return id, nil
}

// SubmitThread validates every entry, then posts them in order, each one a
// reply to the previous. If entry i fails, the ids of entries before it are
// returned together with a *xerr.ThreadError for entry i. Later entries are
// not attempted and nothing already posted is removed.
func (e *Engine) SubmitThread(ctx context.Context, specs []model.PostSpec) ([]string, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty thread", xerr.ErrInvalidPost)
	}
	for i, spec := range specs {
		if err := Validate(spec); err != nil {
			return nil, &xerr.SegmentError{Segment: i + 1, Err: err}
		}
	}

	posted := make([]string, 0, len(specs))
	for i, spec := range specs {
		if i > 0 {
			spec.ReplyTo = posted[i-1]
		}
		if err := e.pace(ctx); err != nil {
			return posted, &xerr.ThreadError{Entry: i + 1, Posted: posted, Err: err}
		}
		id, sent, err := e.submit(ctx, spec)
		if err != nil {
			e.logger.Warn("thread stopped", "entry", i+1, "posted", len(posted), "err", err)
			return posted, &xerr.ThreadError{Entry: i + 1, Posted: posted, Err: err}
		}
		posted = append(posted, id)
		e.logger.Info("thread entry posted", "entry", i+1, "of", len(specs), "id", id)
		e.record(ctx, sent, id, posted[0], i+1)
	}
	return posted, nil
}

// submit uploads attachments then issues the compose call. The returned
// spec carries the assigned media ids.
func (e *Engine) submit(ctx context.Context, spec model.PostSpec) (string, model.PostSpec, error) {
	if len(spec.Media) > 0 {
		attached := make([]model.MediaAttachment, len(spec.Media))
		for i, m := range spec.Media {
			if m.Kind == 0 {
				k, err := media.DetectKind(m.Path)
				if err != nil {
					return "", spec, err
				}
				m.Kind = k
			}
			id, err := e.uploader.Upload(ctx, m.Path, m.Kind)
			if err != nil {
				return "", spec, err
			}
			m.MediaID = id
			attached[i] = m
		}
		spec.Media = attached
	}
	if spec.QuoteID != "" {
		spec.QuoteID, _ = model.ParsePostID(spec.QuoteID)
	}

	id, err := e.poster.CreatePost(ctx, model.NewPostRequest(spec))
	if err != nil {
		return "", spec, err
	}
	return id, spec, nil
}

func (e *Engine) pace(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

func (e *Engine) record(ctx context.Context, spec model.PostSpec, id, threadID string, position int) {
	if e.recorder == nil {
		return
	}
	rec := model.PostRecord{
		PostID:   id,
		Text:     spec.Text,
		ReplyTo:  spec.ReplyTo,
		QuoteID:  spec.QuoteID,
		ThreadID: threadID,
		Position: position,
		PostedAt: e.now().UTC(),
	}
	for _, m := range spec.Media {
		rec.MediaIDs = append(rec.MediaIDs, m.MediaID)
	}
	if err := e.recorder.RecordPost(ctx, rec); err != nil {
		e.logger.Warn("could not record post", "id", id, "err", err)
	}
}
