package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/xerr"
)

// multipartBody writes one file part plus plain fields.
func multipartBody(name, mediaType string, data io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, name))
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func decodeMedia(op string, body []byte) (model.MediaUploadResp, error) {
	var out model.MediaUploadResp
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%s: decode: %w", op, err)
	}
	return out, nil
}

// UploadSimple uploads a small image in one multipart call.
func (c *Client) UploadSimple(ctx context.Context, name, mediaType, category string, data io.Reader) (string, error) {
	const op = "POST /2/media/upload"
	body, contentType, err := multipartBody(name, mediaType, data, map[string]string{"media_category": category})
	if err != nil {
		return "", err
	}
	resp, raw, err := c.send(ctx, request{
		op: op, method: http.MethodPost, path: "/media/upload",
		body: body, contentType: contentType, timeout: c.timeouts.Upload,
	})
	if err != nil {
		return "", err
	}
	if !ok(resp) {
		return "", xerr.FromResponse(resp, raw, op)
	}
	out, err := decodeMedia(op, raw)
	if err != nil {
		return "", err
	}
	id := out.MediaIdentifier()
	if id == "" {
		return "", errors.New("media upload: missing media_id in response")
	}
	return id, nil
}

// InitUpload opens a chunked upload session and returns its media id.
func (c *Client) InitUpload(ctx context.Context, init model.MediaInitRequest) (string, error) {
	const op = "POST /2/media/upload/initialize"
	raw, err := json.Marshal(init)
	if err != nil {
		return "", err
	}
	resp, body, err := c.send(ctx, request{
		op: op, method: http.MethodPost, path: "/media/upload/initialize",
		body: bytes.NewReader(raw), contentType: "application/json", timeout: c.timeouts.Media,
	})
	if err != nil {
		return "", err
	}
	if !ok(resp) {
		return "", xerr.FromResponse(resp, body, op)
	}
	out, err := decodeMedia(op, body)
	if err != nil {
		return "", err
	}
	id := out.MediaIdentifier()
	if id == "" {
		return "", errors.New("media initialize: missing media id in response")
	}
	return id, nil
}

// AppendChunk uploads segment index of an open session.
func (c *Client) AppendChunk(ctx context.Context, mediaID string, segment int, mediaType string, chunk []byte) error {
	const op = "POST /2/media/upload/{id}/append"
	body, contentType, err := multipartBody("chunk"+strconv.Itoa(segment), mediaType, bytes.NewReader(chunk),
		map[string]string{"segment_index": strconv.Itoa(segment)})
	if err != nil {
		return err
	}
	resp, raw, err := c.send(ctx, request{
		op: op, method: http.MethodPost, path: "/media/upload/" + url.PathEscape(mediaID) + "/append",
		body: body, contentType: contentType, timeout: c.timeouts.Append,
	})
	if err != nil {
		return err
	}
	if !ok(resp) {
		return xerr.FromResponse(resp, raw, op)
	}
	return nil
}

// FinalizeUpload closes the session. A nil ProcessingInfo means the media is
// ready.
func (c *Client) FinalizeUpload(ctx context.Context, mediaID string) (*model.ProcessingInfo, error) {
	const op = "POST /2/media/upload/{id}/finalize"
	resp, body, err := c.send(ctx, request{
		op: op, method: http.MethodPost, path: "/media/upload/" + url.PathEscape(mediaID) + "/finalize",
		timeout: c.timeouts.Media,
	})
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, xerr.FromResponse(resp, body, op)
	}
	out, err := decodeMedia(op, body)
	if err != nil {
		return nil, err
	}
	return out.Processing(), nil
}

// UploadStatus polls server-side processing of a finalized upload.
func (c *Client) UploadStatus(ctx context.Context, mediaID string) (*model.ProcessingInfo, error) {
	const op = "GET /2/media/upload?command=STATUS"
	resp, body, err := c.send(ctx, request{
		op: op, method: http.MethodGet, path: "/media/upload",
		query:   url.Values{"command": {"STATUS"}, "media_id": {mediaID}},
		timeout: c.timeouts.Media,
	})
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, xerr.FromResponse(resp, body, op)
	}
	out, err := decodeMedia(op, body)
	if err != nil {
		return nil, err
	}
	return out.Processing(), nil
}
