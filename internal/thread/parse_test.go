package thread

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

func paths(spec model.PostSpec) []string {
	var out []string
	for _, m := range spec.Media {
		out = append(out, m.Path)
	}
	return out
}

func TestParse_Segments(t *testing.T) {
	in := `Opening post

with a second paragraph
@media: one.png
@media: two.jpg
---
Middle post
---

Last post
@media: clip.mp4
`
	specs, err := Parse(in)
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, "Opening post\n\nwith a second paragraph", specs[0].Text)
	assert.Equal(t, []string{"one.png", "two.jpg"}, paths(specs[0]))
	assert.Equal(t, model.KindImage, specs[0].Media[0].Kind)

	assert.Equal(t, "Middle post", specs[1].Text)
	assert.Empty(t, specs[1].Media)

	assert.Equal(t, "Last post", specs[2].Text)
	assert.Equal(t, []string{"clip.mp4"}, paths(specs[2]))
	assert.Equal(t, model.KindVideo, specs[2].Media[0].Kind)
}

func TestParse_NoDelimiterIsOnePost(t *testing.T) {
	specs, err := Parse("just one\npost here\n")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "just one\npost here", specs[0].Text)
}

func TestParse_SegmentCount(t *testing.T) {
	for n := 1; n <= 6; n++ {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = "post"
		}
		specs, err := Parse(strings.Join(parts, "\n---\n"))
		require.NoError(t, err)
		assert.Len(t, specs, n)
	}
}

func TestParse_Tolerance(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		texts []string
		media [][]string
	}{
		{"crlf", "a\r\n---\r\nb\r\n", []string{"a", "b"}, [][]string{nil, nil}},
		{"indented delimiter", "a\n   ---  \nb", []string{"a", "b"}, [][]string{nil, nil}},
		{"marker case and indent", "a\n  @MEDIA:  pic.PNG  \n", []string{"a"}, [][]string{{"pic.PNG"}}},
		{"dashes inside text", "a --- b\n----\nc", []string{"a --- b\n----\nc"}, [][]string{nil}},
		{"media only", "@media: x.gif\n---\ntext", []string{"", "text"}, [][]string{{"x.gif"}, nil}},
		{"media before text", "@media: a.jpg\nhello", []string{"hello"}, [][]string{{"a.jpg"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := Parse(tt.in)
			require.NoError(t, err)
			require.Len(t, specs, len(tt.texts))
			for i := range specs {
				assert.Equal(t, tt.texts[i], specs[i].Text)
				assert.Equal(t, tt.media[i], paths(specs[i]))
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		segment int
		want    error
	}{
		{"empty middle", "a\n---\n   \n---\nc", 2, xerr.ErrEmptySegment},
		{"trailing delimiter", "a\n---\n", 2, xerr.ErrEmptySegment},
		{"empty input", "", 1, xerr.ErrEmptySegment},
		{"marker without path", "a\n@media:\n", 1, xerr.ErrParse},
		{"unsupported media", "a\n---\nb\n@media: notes.txt", 2, xerr.ErrInvalidAttachment},
		{"five images", "a\n@media: 1.png\n@media: 2.png\n@media: 3.png\n@media: 4.png\n@media: 5.png", 1, xerr.ErrInvalidAttachment},
		{"image and video", "a\n@media: 1.png\n@media: 2.mp4", 1, xerr.ErrInvalidAttachment},
		{"two gifs", "a\n@media: 1.gif\n@media: 2.gif", 1, xerr.ErrInvalidAttachment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := Parse(tt.in)
			assert.Nil(t, specs)
			require.ErrorIs(t, err, tt.want)
			var se *xerr.SegmentError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.segment, se.Segment)
		})
	}
}

func TestFromTexts(t *testing.T) {
	specs, err := FromTexts([]string{" first ", "second"})
	require.NoError(t, err)
	assert.Equal(t, []model.PostSpec{{Text: "first"}, {Text: "second"}}, specs)

	_, err = FromTexts([]string{"ok", "  "})
	assert.ErrorIs(t, err, xerr.ErrEmptySegment)
}
