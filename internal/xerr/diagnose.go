package xerr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dghubble/go-twitter/twitter"
)

// v2 problem body, eg: {"title":"Forbidden","detail":"...","type":"https://api.twitter.com/2/problems/..."}
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

const maxRawBody = 300

// Diagnose renders an error response as one line: status, operation, and
// whatever the body says in v2 problem form, v1.1 errors form, or raw.
func Diagnose(resp *http.Response, body []byte, op string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: HTTP %d", op, resp.StatusCode)

	if msg := Message(body); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if lvl := resp.Header.Get("X-Access-Level"); lvl != "" && resp.StatusCode == http.StatusForbidden {
		fmt.Fprintf(&b, " (app access level: %s)", lvl)
	}
	return b.String()
}

// Message extracts the human part of an error body.
func Message(body []byte) string {
	var p problem
	if err := json.Unmarshal(body, &p); err == nil && (p.Title != "" || p.Detail != "") {
		switch {
		case p.Title == "":
			return p.Detail
		case p.Detail == "":
			return p.Title
		}
		return p.Title + " - " + p.Detail
	}

	// v1.1 and some v2 endpoints: {"errors":[{"code":89,"message":"..."}]}
	var apiErr twitter.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		parts := make([]string, 0, len(apiErr.Errors))
		for _, d := range apiErr.Errors {
			if d.Code != 0 {
				parts = append(parts, fmt.Sprintf("[%d] %s", d.Code, d.Message))
			} else {
				parts = append(parts, d.Message)
			}
		}
		return strings.Join(parts, "; ")
	}

	raw := strings.TrimSpace(string(body))
	if len(raw) > maxRawBody {
		raw = raw[:maxRawBody] + "…"
	}
	return raw
}

// FromResponse classifies a non-2xx answer to a non-compose call.
func FromResponse(resp *http.Response, body []byte, op string) error {
	return &APIError{Op: op, StatusCode: resp.StatusCode, Message: Diagnose(resp, body, op)}
}
