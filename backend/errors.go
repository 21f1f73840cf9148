package backend

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a 2xx response body is not a usable token pair.
var ErrMalformedResponse = errors.New("malformed backend response")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status int
	Detail string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend responded %d", e.Status)
	}
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Detail)
}

// StatusCode returns the HTTP status of the response.
func (e *StatusError) StatusCode() int {
	return e.Status
}
