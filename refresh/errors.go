package refresh

import "errors"

var (
	// ErrNoRefreshToken is returned when a refresh is needed but no refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRetryThrottled is returned when the retry policy denies a new attempt.
	ErrRetryThrottled = errors.New("refresh retry throttled")
	// ErrNilRefresher is reported when a coordinator has no refresher configured.
	ErrNilRefresher = errors.New("nil refresher")
	// ErrRefresherPanicked wraps a panic raised by the refresher.
	ErrRefresherPanicked = errors.New("refresher panicked")
)
