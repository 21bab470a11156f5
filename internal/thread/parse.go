// Package thread reads the thread file format:
//
//	First post text
//	@media: photo.jpg
//	---
//	Second post, replying to the first
//
// Posts are separated by a line holding only "---". Lines starting with
// "@media:" attach the file named by the rest of the line; everything else
// is post text.
package thread

import (
	"fmt"
	"strings"

	"github.com/mikequentel/xcli/internal/media"
	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

const (
	Delimiter   = "---"
	MediaMarker = "@media:"
)

// Parse splits text into one PostSpec per segment. It is all-or-nothing:
// any bad segment fails the whole parse with a *xerr.SegmentError.
func Parse(text string) ([]model.PostSpec, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var segments [][]string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == Delimiter {
			segments = append(segments, cur)
			cur = nil
			continue
		}
		cur = append(cur, line)
	}
	segments = append(segments, cur)

	specs := make([]model.PostSpec, 0, len(segments))
	for i, lines := range segments {
		spec, err := parseSegment(lines)
		if err != nil {
			return nil, &xerr.SegmentError{Segment: i + 1, Err: err}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseSegment(lines []string) (model.PostSpec, error) {
	var textLines, paths []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= len(MediaMarker) && strings.EqualFold(trimmed[:len(MediaMarker)], MediaMarker) {
			path := strings.TrimSpace(trimmed[len(MediaMarker):])
			if path == "" {
				return model.PostSpec{}, fmt.Errorf("%w: %s without a file path", xerr.ErrParse, MediaMarker)
			}
			paths = append(paths, path)
			continue
		}
		textLines = append(textLines, line)
	}

	spec := model.PostSpec{Text: strings.TrimSpace(strings.Join(textLines, "\n"))}
	if spec.Text == "" && len(paths) == 0 {
		return spec, xerr.ErrEmptySegment
	}
	if len(paths) > 0 {
		atts, err := media.Attachments(paths)
		if err != nil {
			return spec, err
		}
		spec.Media = atts
	}
	return spec, nil
}

// FromTexts builds a text-only thread, one post per argument.
func FromTexts(texts []string) ([]model.PostSpec, error) {
	specs := make([]model.PostSpec, 0, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, &xerr.SegmentError{Segment: i + 1, Err: xerr.ErrEmptySegment}
		}
		specs = append(specs, model.PostSpec{Text: t})
	}
	return specs, nil
}
