// Package media validates attachments and uploads them.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

// SupportedExtensions lists what DetectKind accepts, for help text.
const SupportedExtensions = ".jpg .jpeg .png .webp .gif .mp4 .mov"

// DetectKind classifies a file by extension.
func DetectKind(path string) (model.MediaKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return model.KindImage, nil
	case ".gif":
		return model.KindGIF, nil
	case ".mp4", ".mov":
		return model.KindVideo, nil
	}
	return 0, &xerr.AttachmentError{Path: path, Reason: "unsupported file type (want one of " + SupportedExtensions + ")"}
}

// MediaType is the MIME type sent with an upload.
func MediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	}
	return "image/jpeg"
}

// ValidateKinds enforces the per-post attachment rule: up to 4 images, or a
// single video or GIF on its own.
func ValidateKinds(kinds []model.MediaKind) error {
	var images, motion int
	for _, k := range kinds {
		if k == model.KindImage {
			images++
		} else {
			motion++
		}
	}
	switch {
	case motion > 1:
		return &xerr.AttachmentError{Reason: "at most one video or GIF per post"}
	case motion == 1 && images > 0:
		return &xerr.AttachmentError{Reason: "a video or GIF cannot be combined with images"}
	case images > model.MaxImages:
		return &xerr.AttachmentError{Reason: fmt.Sprintf("at most %d images per post, got %d", model.MaxImages, images)}
	}
	return nil
}

// Attachments detects the kind of every path and checks the set as a whole.
// It does not touch the filesystem.
func Attachments(paths []string) ([]model.MediaAttachment, error) {
	out := make([]model.MediaAttachment, 0, len(paths))
	kinds := make([]model.MediaKind, 0, len(paths))
	for _, p := range paths {
		k, err := DetectKind(p)
		if err != nil {
			return nil, err
		}
		out = append(out, model.MediaAttachment{Path: p, Kind: k})
		kinds = append(kinds, k)
	}
	if err := ValidateKinds(kinds); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateFiles checks that every path is a readable regular file.
func ValidateFiles(paths []string) error {
	for _, p := range paths {
		if err := ensureFile(p); err != nil {
			return &xerr.AttachmentError{Path: p, Reason: err.Error()}
		}
	}
	return nil
}

func ensureFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found")
		}
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
