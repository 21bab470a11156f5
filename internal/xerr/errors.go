// Package xerr holds the error kinds shared by the signing, upload, compose
// and read paths, plus helpers that turn platform HTTP errors into them.
package xerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAttachment  = errors.New("invalid attachment")
	ErrInvalidPost        = errors.New("invalid post")
	ErrUploadFailed       = errors.New("media upload failed")
	ErrUploadTimeout      = errors.New("media processing timed out")
	ErrEmptySegment       = errors.New("empty thread segment")
	ErrParse              = errors.New("malformed thread")
	ErrNetwork            = errors.New("network error")
	ErrForbidden          = errors.New("forbidden")
	ErrNotAvailable       = errors.New("not available")
	ErrRateLimited        = errors.New("rate limited")
	ErrNotConfigured      = errors.New("credentials not configured")
	ErrNotLoggedIn        = errors.New("no browser session")
	ErrSessionExpired     = errors.New("browser session expired")
)

// AttachmentError is a rejected attachment set, detected before any network call.
type AttachmentError struct {
	Path   string
	Reason string
}

func (e *AttachmentError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid attachment: %s", e.Reason)
	}
	return fmt.Sprintf("invalid attachment %s: %s", e.Path, e.Reason)
}

func (e *AttachmentError) Is(target error) bool { return target == ErrInvalidAttachment }

// Phase names the upload step that failed.
type Phase string

const (
	PhaseInit     Phase = "INIT"
	PhaseAppend   Phase = "APPEND"
	PhaseFinalize Phase = "FINALIZE"
	PhaseStatus   Phase = "STATUS"
)

// UploadError reports which phase of a media upload failed. A processing
// timeout matches ErrUploadTimeout; every other failure matches ErrUploadFailed.
type UploadError struct {
	Phase Phase
	Path  string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed in %s: %v", e.Path, e.Phase, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed && !errors.Is(e.Err, ErrUploadTimeout)
}

// PostRejectedError is a compose call the platform declined.
type PostRejectedError struct {
	StatusCode int
	Message    string
}

func (e *PostRejectedError) Error() string {
	return fmt.Sprintf("post rejected (%d): %s", e.StatusCode, e.Message)
}

func (e *PostRejectedError) Is(target error) bool {
	return target == statusKind(e.StatusCode)
}

// APIError is a non-2xx answer to any call other than compose.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == statusKind(e.StatusCode)
}

func statusKind(code int) error {
	switch code {
	case 401:
		return ErrInvalidCredentials
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotAvailable
	case 429:
		return ErrRateLimited
	}
	return nil
}

// NetworkError is a transport-level failure; no HTTP status was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// SegmentError locates a thread-file problem. Segment is 1-based.
type SegmentError struct {
	Segment int
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("thread segment #%d: %v", e.Segment, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// ThreadError is returned by a thread submission that stopped at Entry
// (1-based). Posted holds the ids of the entries before it, in order.
type ThreadError struct {
	Entry  int
	Posted []string
	Err    error
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("thread entry #%d failed after %d posted: %v", e.Entry, len(e.Posted), e.Err)
}

func (e *ThreadError) Unwrap() error { return e.Err }

// MissingFields builds an ErrInvalidCredentials error naming the empty fields.
func MissingFields(fields []string) error {
	return fmt.Errorf("%w: missing %s", ErrInvalidCredentials, strings.Join(fields, ", "))
}
