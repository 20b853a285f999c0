package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrServerHTTPError indicates that the server returned a non-2xx status.
var ErrServerHTTPError = errors.New("server returned HTTP error")

// StatusError carries the status code and server message of a failed call.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d: %s", ErrServerHTTPError, e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrServerHTTPError.
func (e *StatusError) Unwrap() error {
	return ErrServerHTTPError
}

// Temporary reports whether the same request may succeed later. Other 4xx
// responses reject the request itself.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError ||
		e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusRequestTimeout
}
