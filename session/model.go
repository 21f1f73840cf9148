package session

// ErrorCode is the sentinel recorded by the last refresh attempt.
type ErrorCode string

const (
	// ErrorNone means no known refresh error.
	ErrorNone ErrorCode = ""
	// ErrorSessionExpired is set when a refresh was needed but no refresh token was available.
	ErrorSessionExpired ErrorCode = "SessionExpired"
	// ErrorRefreshAccessToken is set when the backend rejected the refresh token.
	ErrorRefreshAccessToken ErrorCode = "RefreshAccessTokenError"
)

// Token is the logical session token record owned by the caller's session store.
//
// Token values are mutated in place by refresh outcomes; callers that share a Token
// across goroutines must clone it first.
type Token struct {
	AccessToken            string
	AccessTokenExpiresAtMs int64
	RefreshToken           string
	LastError              ErrorCode

	// Identifier is the normalized login identifier, used for client signatures.
	Identifier  string
	CreatedAtMs int64
	UpdatedAtMs int64
}

// Clone returns a copy of t. A nil receiver returns nil.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

// HasError reports whether an error sentinel is recorded.
func (t *Token) HasError() bool {
	return t != nil && t.LastError != ErrorNone
}

// Clear wipes every credential field and records code as the last error.
func (t *Token) Clear(code ErrorCode) {
	if t == nil {
		return
	}
	t.AccessToken = ""
	t.AccessTokenExpiresAtMs = 0
	t.RefreshToken = ""
	t.LastError = code
}
