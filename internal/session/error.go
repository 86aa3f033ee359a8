package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoRefreshToken is returned by a renewal cycle that found no refresh
// token in the credential store. No network call is made in that case.
var ErrNoRefreshToken = errors.New("session: no refresh token stored")

// genericFailureMessage is shown when the platform body carries no usable
// detail or message field.
const genericFailureMessage = "Something went wrong. Please try again."

// HTTPError is a non-2xx platform response, preserved with its body so
// callers and the notification path can surface the platform's own wording.
type HTTPError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("planner %s returned %d", e.Op, e.Status)
}

// Detail extracts the human-readable message from the response body. The
// platform reports errors as {"detail": "..."}; a few proxied services use
// {"message": "..."} instead. Anything else falls back to a generic line.
func (e *HTTPError) Detail() string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &payload); err == nil {
		if s := rawToString(payload.Detail); s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return genericFailureMessage
}

// rawToString unwraps a detail field that is a plain JSON string. Structured
// detail payloads (validation error arrays) are not user-presentable.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
