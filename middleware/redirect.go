package middleware

import "strings"

// DefaultAuthPrefix is the session layer's own endpoint prefix.
const DefaultAuthPrefix = "/api/auth"

// ResolveSafeRedirectTarget returns candidate unchanged when it is a
// same-origin absolute path outside the auth endpoints, and "/" otherwise.
// Protocol-relative targets ("//host", "/\host") are rejected.
func ResolveSafeRedirectTarget(candidate string) string {
	return ResolveSafeRedirectTargetFor(candidate, DefaultAuthPrefix)
}

// ResolveSafeRedirectTargetFor is [ResolveSafeRedirectTarget] for a session
// layer mounted under authPrefix.
func ResolveSafeRedirectTargetFor(candidate, authPrefix string) string {
	if !isSafeRedirectTarget(candidate, authPrefix) {
		return "/"
	}
	return candidate
}

func isSafeRedirectTarget(candidate, authPrefix string) bool {
	if candidate == "" || candidate[0] != '/' {
		return false
	}
	if len(candidate) > 1 && (candidate[1] == '/' || candidate[1] == '\\') {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if c := candidate[i]; c < 0x20 || c == 0x7f {
			return false
		}
	}

	authPrefix = strings.TrimRight(authPrefix, "/")
	if authPrefix == "" {
		return true
	}
	path := candidate
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	authPrefix = strings.ToLower(authPrefix)
	return path != authPrefix && !strings.HasPrefix(path, authPrefix+"/")
}
