// Package validate checks inbound parameters before anything is forwarded.
package validate

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// undefinedLiteral is what the dashboard sends when a client-side id was never set.
const undefinedLiteral = "undefined"

// uuidLen is the length of the canonical 8-4-4-4-12 form.
const uuidLen = 36

// Error is a locally synthesized client error.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Present reports whether v counts as a supplied value.
func Present(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != undefinedLiteral
}

// IsUUID reports whether v is a hyphenated hex UUID, in any letter case.
// uuid.Parse alone also accepts braces and the urn:uuid: prefix, so the
// length is pinned to the canonical form.
func IsUUID(v string) bool {
	if len(v) != uuidLen {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}

// Field validates a single required value. When id is set the value must
// also be a UUID.
func Field(name, value string, id bool) error {
	if !Present(value) {
		return Missing(name)
	}
	if id && !IsUUID(value) {
		return InvalidUUID(name)
	}
	return nil
}

// BodyValue reports presence of a decoded JSON value and returns its string
// form when it is a string.
func BodyValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, Present(x)
	default:
		return "", true
	}
}

// Missing returns the 400 error for an absent field.
func Missing(name string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: "Missing " + name}
}

// InvalidUUID returns the 400 error for an identifier that is not a UUID.
func InvalidUUID(name string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Message: "Invalid " + name + " format. Expected UUID.",
	}
}

// InvalidBody returns the 400 error for a body that is not a JSON object.
func InvalidBody() *Error {
	return &Error{Status: http.StatusBadRequest, Message: "Invalid JSON body"}
}

// Unauthorized returns the 401 error for a missing Authorization header.
func Unauthorized() *Error {
	return &Error{Status: http.StatusUnauthorized, Message: "Unauthorized"}
}
