package api

import (
	"errors"
	"net/http"
)

// NetworkErrorMessage is shown for transport failures and unreadable responses.
const NetworkErrorMessage = "Network error. Please try again."

// Error is the failure result of every gateway call. Status is the HTTP
// status of the response, or 0 when no usable response arrived.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

// Network reports a transport-level failure.
func (e *Error) Network() bool {
	return e.Status == 0
}

func networkError() *Error {
	return &Error{Message: NetworkErrorMessage}
}

// IsUnauthorized reports whether err is a 401 from the API, meaning the
// session is no longer valid.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
