package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"
)

const (
	// HeaderClient carries the client key.
	HeaderClient = "X-Rate-Limit-Client"
	// HeaderSignature carries the hex HMAC of the client key.
	HeaderSignature = "X-Rate-Limit-Signature"
)

var (
	clientKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
	signaturePattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ClientKey returns the first 32 hex characters of SHA-256 over the trimmed,
// lowercased identifier. An identifier that is empty after trimming has no key.
func ClientKey(identifier string) string {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:32]
}

// Sign returns hex(HMAC-SHA256(secret, clientKey)).
func Sign(secret, clientKey string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a forwarded client key and signature the way the backend does.
// It returns the normalized key when the pair is well formed and the signature
// matches in constant time.
func Verify(secret, clientKey, sig string) (string, bool) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", false
	}
	key := strings.TrimSpace(clientKey)
	if !clientKeyPattern.MatchString(key) {
		return "", false
	}
	sig = strings.ToLower(strings.TrimSpace(sig))
	if !signaturePattern.MatchString(sig) {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(Sign(secret, key))) {
		return "", false
	}
	return key, true
}

// Signer attaches client signature headers to outbound requests.
type Signer struct {
	Secret string
}

// Apply sets the client headers for identifier on h. It is a no-op for an empty
// identifier and omits the signature header when no secret is configured.
func (s Signer) Apply(h http.Header, identifier string) {
	key := ClientKey(identifier)
	if key == "" {
		return
	}
	h.Set(HeaderClient, key)
	if secret := strings.TrimSpace(s.Secret); secret != "" {
		h.Set(HeaderSignature, Sign(secret, key))
	}
}
