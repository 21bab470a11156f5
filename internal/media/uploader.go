package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

const (
	DefaultChunkSize         = 4 << 20
	DefaultMaxAppendAttempts = 3
	DefaultMaxWait           = 5 * time.Minute
	DefaultCheckAfter        = 5 * time.Second

	// SimpleImageLimit is the largest image sent in a single call.
	SimpleImageLimit = 5 << 20
)

// API is the platform side of an upload. *xapi.Client implements it.
type API interface {
	UploadSimple(ctx context.Context, name, mediaType, category string, data io.Reader) (string, error)
	InitUpload(ctx context.Context, init model.MediaInitRequest) (string, error)
	AppendChunk(ctx context.Context, mediaID string, segment int, mediaType string, chunk []byte) error
	FinalizeUpload(ctx context.Context, mediaID string) (*model.ProcessingInfo, error)
	UploadStatus(ctx context.Context, mediaID string) (*model.ProcessingInfo, error)
}

type State int

const (
	StateInit State = iota
	StateAppending
	StateFinalizing
	StatePolling
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAppending:
		return "APPENDING"
	case StateFinalizing:
		return "FINALIZING"
	case StatePolling:
		return "POLLING"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Uploader turns a local file into a media id. Zero values of the tunables
// fall back to the defaults above.
type Uploader struct {
	API               API
	ChunkSize         int
	MaxAppendAttempts int
	// MaxWait bounds the total time spent waiting between status polls.
	MaxWait time.Duration
	// Wait sleeps between polls; tests replace it to avoid real sleeps.
	Wait func(ctx context.Context, d time.Duration) error
	// OnTransition, if set, observes every state change, including
	// POLLING -> POLLING.
	OnTransition func(from, to State)
	Logger       *slog.Logger
}

func NewUploader(api API) *Uploader {
	return &Uploader{
		API:               api,
		ChunkSize:         DefaultChunkSize,
		MaxAppendAttempts: DefaultMaxAppendAttempts,
		MaxWait:           DefaultMaxWait,
		Wait:              sleepCtx,
		Logger:            slog.Default().With("component", "media"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// session is the transient state of one chunked upload.
type session struct {
	path      string
	kind      model.MediaKind
	mediaType string
	total     int64
	file      *os.File

	state    State
	mediaID  string
	segments int
	info     *model.ProcessingInfo
	waited   time.Duration
	err      error
}

// Upload sends the file at path and returns its media id once the platform
// reports it ready. Images up to SimpleImageLimit go in one call; everything
// else runs INIT, APPENDING, FINALIZING and POLLING.
func (u *Uploader) Upload(ctx context.Context, path string, kind model.MediaKind) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &xerr.AttachmentError{Path: path, Reason: err.Error()}
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", &xerr.AttachmentError{Path: path, Reason: err.Error()}
	}

	if kind == model.KindImage && fi.Size() <= SimpleImageLimit {
		return u.uploadSimple(ctx, f, path)
	}
	s := &session{
		path:      path,
		kind:      kind,
		mediaType: MediaType(path),
		total:     fi.Size(),
		file:      f,
	}
	return u.run(ctx, s)
}

func (u *Uploader) uploadSimple(ctx context.Context, f *os.File, path string) (string, error) {
	id, err := u.API.UploadSimple(ctx, filepath.Base(path), MediaType(path), model.KindImage.Category(), f)
	if err != nil {
		u.transition(StateInit, StateFailed)
		return "", &xerr.UploadError{Phase: xerr.PhaseInit, Path: path, Err: err}
	}
	u.transition(StateInit, StateReady)
	return id, nil
}

func (u *Uploader) run(ctx context.Context, s *session) (string, error) {
	s.state = StateInit
	for {
		switch s.state {
		case StateInit:
			id, err := u.API.InitUpload(ctx, model.MediaInitRequest{
				TotalBytes:    s.total,
				MediaType:     s.mediaType,
				MediaCategory: s.kind.Category(),
			})
			if err != nil {
				u.fail(s, xerr.PhaseInit, err)
				continue
			}
			s.mediaID = id
			u.advance(s, StateAppending)

		case StateAppending:
			if err := u.appendAll(ctx, s); err != nil {
				u.fail(s, xerr.PhaseAppend, err)
				continue
			}
			u.advance(s, StateFinalizing)

		case StateFinalizing:
			info, err := u.API.FinalizeUpload(ctx, s.mediaID)
			if err != nil {
				u.fail(s, xerr.PhaseFinalize, err)
				continue
			}
			u.settle(s, xerr.PhaseFinalize, info)

		case StatePolling:
			wait := checkAfter(s.info)
			if s.waited+wait > u.maxWait() {
				u.fail(s, xerr.PhaseStatus, fmt.Errorf("%w after %s", xerr.ErrUploadTimeout, s.waited))
				continue
			}
			if err := u.wait(ctx, wait); err != nil {
				u.fail(s, xerr.PhaseStatus, err)
				continue
			}
			s.waited += wait
			info, err := u.API.UploadStatus(ctx, s.mediaID)
			if err != nil {
				u.fail(s, xerr.PhaseStatus, err)
				continue
			}
			u.settle(s, xerr.PhaseStatus, info)

		case StateReady:
			u.log().Debug("media ready", "path", s.path, "media_id", s.mediaID, "segments", s.segments)
			return s.mediaID, nil

		case StateFailed:
			return "", s.err
		}
	}
}

// settle moves on from a finalize or status answer. No processing info
// means the media needs no server-side processing.
func (u *Uploader) settle(s *session, phase xerr.Phase, info *model.ProcessingInfo) {
	s.info = info
	switch {
	case info == nil || info.State == model.StateSucceeded:
		u.advance(s, StateReady)
	case info.State == model.StateFailed:
		msg := "processing failed"
		if info.Error != nil && info.Error.Message != "" {
			msg = info.Error.Message
		}
		u.fail(s, phase, errors.New(msg))
	default:
		u.log().Debug("media processing", "media_id", s.mediaID, "state", info.State, "progress", info.ProgressPct)
		u.advance(s, StatePolling)
	}
}

func (u *Uploader) appendAll(ctx context.Context, s *session) error {
	size := u.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	for segment := 0; ; segment++ {
		n, err := io.ReadFull(s.file, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		if err := u.appendChunk(ctx, s, segment, buf[:n]); err != nil {
			return err
		}
		s.segments++
		if n < size {
			return nil
		}
	}
}

// appendChunk retries one segment immediately. Appends are idempotent per
// segment index.
func (u *Uploader) appendChunk(ctx context.Context, s *session, segment int, chunk []byte) error {
	attempts := u.MaxAppendAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAppendAttempts
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = u.API.AppendChunk(ctx, s.mediaID, segment, s.mediaType, chunk); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		u.log().Warn("append failed", "media_id", s.mediaID, "segment", segment, "attempt", attempt, "err", err)
	}
	return fmt.Errorf("segment %d: %d attempts: %w", segment, attempts, err)
}

func (u *Uploader) advance(s *session, to State) {
	u.transition(s.state, to)
	s.state = to
}

func (u *Uploader) fail(s *session, phase xerr.Phase, err error) {
	s.err = &xerr.UploadError{Phase: phase, Path: s.path, Err: err}
	u.advance(s, StateFailed)
}

func (u *Uploader) transition(from, to State) {
	u.log().Debug("upload state", "from", from, "to", to)
	if u.OnTransition != nil {
		u.OnTransition(from, to)
	}
}

func (u *Uploader) log() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

func (u *Uploader) wait(ctx context.Context, d time.Duration) error {
	if u.Wait != nil {
		return u.Wait(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func (u *Uploader) maxWait() time.Duration {
	if u.MaxWait <= 0 {
		return DefaultMaxWait
	}
	return u.MaxWait
}

func checkAfter(info *model.ProcessingInfo) time.Duration {
	if info == nil || info.CheckAfterSecs <= 0 {
		return DefaultCheckAfter
	}
	return time.Duration(info.CheckAfterSecs) * time.Second
}
