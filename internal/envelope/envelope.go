// Package envelope turns backend responses and local failures into the
// replies the dashboard expects: backend JSON unchanged on success and
// {"message": "..."} on failure.
package envelope

import (
	"encoding/json"
	"net/http"
	"strings"

	"dashboard-gateway/internal/model"
)

const contentTypeJSON = "application/json"

// defaultFailure is used when the backend status has no standard text.
const defaultFailure = "Request failed"

// Envelope is the uniform failure body.
type Envelope struct {
	Message string `json:"message"`
}

// Message builds a {"message": msg} reply.
func Message(status int, msg string) model.Reply {
	return JSON(status, Envelope{Message: msg})
}

// JSON builds a reply from any JSON-encodable value.
func JSON(status int, v any) model.Reply {
	b, err := json.Marshal(v)
	if err != nil {
		// Only reachable with a non-encodable value, which is a programming error.
		b = []byte(`{"message":"` + defaultFailure + `"}`)
		status = http.StatusInternalServerError
	}
	return model.Reply{Status: status, ContentType: contentTypeJSON, Body: b}
}

// Normalize passes 2xx responses through untouched and reduces anything
// else to an Envelope carrying the backend status.
func Normalize(resp *model.BackendResponse) model.Reply {
	if resp.OK() {
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = contentTypeJSON
		}
		return model.Reply{Status: resp.StatusCode, ContentType: ct, Body: resp.Body.Raw}
	}
	return Message(resp.StatusCode, ExtractMessage(resp.StatusCode, resp.Body))
}

// ExtractMessage picks the most specific human-readable message out of an
// error body. Recognized JSON shapes, in order: message string, message
// array of strings, error string, error.message string.
func ExtractMessage(status int, body model.ParsedBody) string {
	switch body.Kind {
	case model.BodyJSON:
		if obj, ok := body.Object(); ok {
			if msg := messageField(obj); msg != "" {
				return msg
			}
		}
		if s, ok := body.JSON.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	case model.BodyText:
		return body.Text
	}

	if text := http.StatusText(status); text != "" {
		return text
	}
	return defaultFailure
}

func messageField(obj map[string]any) string {
	switch m := obj["message"].(type) {
	case string:
		if m != "" {
			return m
		}
	case []any:
		parts := make([]string, 0, len(m))
		for _, v := range m {
			if s, ok := v.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}

	switch e := obj["error"].(type) {
	case string:
		return e
	case map[string]any:
		if s, ok := e["message"].(string); ok {
			return s
		}
	}
	return ""
}
