package middleware

import (
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Matcher classifies request paths for the gate.
type Matcher struct {
	excluded   []string
	authPages  []string
	apiPrefix  string
	authPrefix string
}

// NewMatcher builds a matcher from the gate configuration.
//
// Excluded entries ending in "/" match by prefix; other entries match exactly.
// Auth pages match exactly, with or without a trailing slash.
func NewMatcher(cfg goSession.GateConfig) *Matcher {
	return &Matcher{
		excluded:   append([]string(nil), cfg.ExcludedPrefixes...),
		authPages:  append([]string(nil), cfg.AuthPages...),
		apiPrefix:  cfg.APIPrefix,
		authPrefix: strings.TrimRight(cfg.AuthPrefix, "/"),
	}
}

// Excluded reports whether path bypasses the gate.
func (m *Matcher) Excluded(path string) bool {
	for _, p := range m.excluded {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// IsAuthPage reports whether path is a login or register page.
func (m *Matcher) IsAuthPage(path string) bool {
	trimmed := path
	if len(trimmed) > 1 {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	for _, p := range m.authPages {
		if trimmed == p {
			return true
		}
	}
	return false
}

// IsAPI reports whether path is answered with JSON instead of redirects.
func (m *Matcher) IsAPI(path string) bool {
	return m.apiPrefix != "" && strings.HasPrefix(path, m.apiPrefix)
}

// IsAuthEndpoint reports whether path belongs to the session layer's own
// endpoints, which must stay reachable without a session.
func (m *Matcher) IsAuthEndpoint(path string) bool {
	if m.authPrefix == "" {
		return false
	}
	return path == m.authPrefix || strings.HasPrefix(path, m.authPrefix+"/")
}
