// Package model defines shared types for the gateway.
package model

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
)

// BackendRequest is one outbound call to the backend API. RawQuery, when
// set, is sent as-is and Query is ignored.
type BackendRequest struct {
	Method        string
	Path          string
	Query         url.Values
	RawQuery      string
	Authorization string
	Body          []byte
	RequestID     string
}

// BackendResponse is a fully read backend response.
type BackendResponse struct {
	StatusCode int
	Header     http.Header
	Body       ParsedBody
}

// OK reports whether the backend answered with a 2xx status.
func (r *BackendResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Reply is what the gateway writes back to the dashboard.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
}

// BodyKind tags the shape of a ParsedBody.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyJSON
	BodyText
)

// String returns the kind name used in logs.
func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	default:
		return "empty"
	}
}

// ParsedBody is a response or request body classified once, up front.
// Raw always holds the original bytes.
type ParsedBody struct {
	Kind BodyKind
	JSON any
	Text string
	Raw  []byte
}

// ParseBody classifies raw. It never fails: whitespace-only input is
// Empty, valid JSON is JSON and anything else is Text.
func ParseBody(raw []byte) ParsedBody {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ParsedBody{Kind: BodyEmpty, Raw: raw}
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err == nil {
		return ParsedBody{Kind: BodyJSON, JSON: v, Raw: raw}
	}

	return ParsedBody{Kind: BodyText, Text: string(trimmed), Raw: raw}
}

// Object returns the body as a JSON object, if it is one.
func (b ParsedBody) Object() (map[string]any, bool) {
	if b.Kind != BodyJSON {
		return nil, false
	}
	obj, ok := b.JSON.(map[string]any)
	return obj, ok
}
