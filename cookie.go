package goSession

import (
	"net/http"
)

// SessionIDFromRequest reads the session cookie. It returns "" when absent.
func (e *Engine) SessionIDFromRequest(r *http.Request) string {
	if e == nil || r == nil {
		return ""
	}
	c, err := r.Cookie(e.config.Session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SessionCookie builds the cookie that carries sessionID. Its lifetime matches
// the session TTL.
func (e *Engine) SessionCookie(sessionID string) *http.Cookie {
	cfg := e.config.Session
	sameSite, _ := parseSameSite(cfg.CookieSameSite)
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    sessionID,
		Path:     cfg.CookiePath,
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSite,
	}
}

// ClearSessionCookie builds a cookie that deletes the session cookie.
func (e *Engine) ClearSessionCookie() *http.Cookie {
	c := e.SessionCookie("")
	c.MaxAge = -1
	return c
}
