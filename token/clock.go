package token

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Skew is the safety margin subtracted from an expiry before a token counts as fresh.
const Skew = 5 * time.Second

// FallbackLifetime is assumed for a freshly issued access token whose expiry
// cannot be determined.
const FallbackLifetime = 14 * time.Minute

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeExpiry extracts the "exp" claim of a compact JWS as epoch milliseconds.
// It returns false for anything that is not three dot-separated segments with a
// base64url JSON object payload carrying a numeric exp.
func DecodeExpiry(accessToken string) (int64, bool) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 || parts[1] == "" {
		return 0, false
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return 0, false
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, false
	}

	exp, ok := claims["exp"].(float64)
	if !ok || math.IsNaN(exp) || math.IsInf(exp, 0) {
		return 0, false
	}

	ms := exp * 1000
	if ms >= math.MaxInt64 || ms <= math.MinInt64 {
		return 0, false
	}
	return int64(ms), true
}

// ResolveExpiry returns explicitMs when it is set (non-zero), otherwise the
// decoded expiry of accessToken. A negative explicit expiry is honored and is
// already in the past. An empty access token with no explicit expiry resolves
// to false.
func ResolveExpiry(accessToken string, explicitMs int64) (int64, bool) {
	if explicitMs != 0 {
		return explicitMs, true
	}
	if accessToken == "" {
		return 0, false
	}
	return DecodeExpiry(accessToken)
}

// IssuedExpiry resolves the expiry of a token that was just issued, assuming
// [FallbackLifetime] when nothing better is known.
func IssuedExpiry(accessToken string, explicitMs int64, now time.Time) int64 {
	if ms, ok := ResolveExpiry(accessToken, explicitMs); ok {
		return ms
	}
	return now.Add(FallbackLifetime).UnixMilli()
}
