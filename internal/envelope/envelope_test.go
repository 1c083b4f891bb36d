package envelope

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashboard-gateway/internal/model"
)

func backendResponse(status int, contentType, body string) *model.BackendResponse {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &model.BackendResponse{StatusCode: status, Header: h, Body: model.ParseBody([]byte(body))}
}

func TestNormalize_SuccessPassthrough(t *testing.T) {
	t.Parallel()

	r := Normalize(backendResponse(http.StatusOK, "application/json; charset=utf-8", `{"foo":"bar"}`))

	assert.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "application/json; charset=utf-8", r.ContentType)
	assert.Equal(t, `{"foo":"bar"}`, string(r.Body))
}

func TestNormalize_SuccessDefaultsContentType(t *testing.T) {
	t.Parallel()

	r := Normalize(backendResponse(http.StatusCreated, "", `{"id":"1"}`))

	assert.Equal(t, http.StatusCreated, r.Status)
	assert.Equal(t, "application/json", r.ContentType)
	assert.Equal(t, `{"id":"1"}`, string(r.Body))
}

func TestNormalize_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", http.StatusNotFound, `{"message":"not found"}`, "not found"},
		{"message array", http.StatusBadRequest, `{"message":["name is required","phone is invalid"]}`, "name is required, phone is invalid"},
		{"error field", http.StatusForbidden, `{"error":"forbidden"}`, "forbidden"},
		{"nested error", http.StatusConflict, `{"error":{"message":"duplicate sku"}}`, "duplicate sku"},
		{"message wins over error", http.StatusBadRequest, `{"message":"m","error":"e"}`, "m"},
		{"empty message falls to error", http.StatusBadRequest, `{"message":"","error":"e"}`, "e"},
		{"json string", http.StatusBadRequest, `"bad input"`, "bad input"},
		{"plain text", http.StatusBadGateway, "upstream exploded\n", "upstream exploded"},
		{"empty body", http.StatusServiceUnavailable, "", "Service Unavailable"},
		{"unrecognized json", http.StatusUnprocessableEntity, `{"detail":"x"}`, "Unprocessable Entity"},
		{"unknown status", 599, "", "Request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Normalize(backendResponse(tt.status, "application/json", tt.body))
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, "application/json", r.ContentType)
			assert.JSONEq(t, `{"message":`+strconv.Quote(tt.want)+`}`, string(r.Body))
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	r := Message(http.StatusBadRequest, `Missing "id"`)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.JSONEq(t, `{"message":"Missing \"id\""}`, string(r.Body))
}

func TestMessages_Fallback(t *testing.T) {
	t.Parallel()

	en, err := NewMessages("en")
	require.NoError(t, err)
	r := en.Fallback()
	assert.Equal(t, http.StatusInternalServerError, r.Status)
	assert.JSONEq(t, `{"message":"An error occurred while connecting to the server"}`, string(r.Body))

	th, err := NewMessages("th")
	require.NoError(t, err)
	assert.Equal(t, "เกิดข้อผิดพลาดในการเชื่อมต่อกับเซิร์ฟเวอร์", th.TransportFailure())
}

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	_, err := ParseLanguage("en-US")
	assert.NoError(t, err)

	_, err = ParseLanguage("th")
	assert.NoError(t, err)

	_, err = ParseLanguage("fr")
	assert.Error(t, err)

	_, err = ParseLanguage("not a language!")
	assert.Error(t, err)
}
