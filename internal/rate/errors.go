package rate

import "errors"

var (
	// ErrRedisUnavailable is an exported constant or variable used by the retry throttle.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
