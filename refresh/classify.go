package refresh

import (
	"errors"
	"net/http"
)

// FailureKind classifies a refresh outcome.
type FailureKind uint8

const (
	// FailureNone marks a successful refresh.
	FailureNone FailureKind = iota
	// FailureTransient marks a failure that says nothing about the token's validity.
	FailureTransient
	// FailureTerminal marks a failure that proves the refresh token is dead.
	FailureTerminal
)

// String returns "none", "transient" or "terminal".
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransient:
		return "transient"
	case FailureTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

type statusCoder interface {
	StatusCode() int
}

// ClassifyError maps a refresh error to its kind and the HTTP status it carried,
// if any. Errors exposing StatusCode() are transient for 429 and 5xx and terminal
// otherwise. Errors without a status are transient, except [ErrNoRefreshToken].
func ClassifyError(err error) (FailureKind, int) {
	if err == nil {
		return FailureNone, 0
	}
	if errors.Is(err, ErrNoRefreshToken) {
		return FailureTerminal, 0
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		if IsTransientStatus(status) {
			return FailureTransient, status
		}
		return FailureTerminal, status
	}

	return FailureTransient, 0
}

// IsTransientStatus reports whether status is 429 or in the 5xx range.
func IsTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}
