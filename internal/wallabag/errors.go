package wallabag

import (
	"errors"
	"fmt"
)

// Common errors returned by client calls.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, wallabag.ErrNotFound) {
//	    // entity already gone server-side
//	}
var (
	// ErrUnauthorized is returned when credentials are rejected for a
	// reason other than token expiry. Expired tokens are refreshed and
	// retried internally and never surface as an error.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the server refuses access to an
	// entity owned by another user.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the entity does not exist server-side.
	ErrNotFound = errors.New("not found")

	// ErrNotModified is returned by reload when the server has no newer
	// content for the entry.
	ErrNotModified = errors.New("not modified")
)

// errTokenExpired is the internal signal that triggers a token refresh and
// a single retry. It must never escape the client.
var errTokenExpired = errors.New("access token expired")

// APIError carries the status code and server-provided message for
// responses that don't map to one of the sentinel errors above.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// responseError is the body shape of oauth failures.
type responseError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// codeMessageError is the body shape of api failures (403, 404).
type codeMessageError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
