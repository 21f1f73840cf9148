package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

var gateNow = time.Unix(1_700_000_000, 0)

type stubBackend struct{}

func (stubBackend) Login(context.Context, string, string) (refresh.TokenPair, error) {
	return refresh.TokenPair{}, nil
}

func (stubBackend) Refresh(context.Context, string) (refresh.TokenPair, error) {
	return refresh.TokenPair{}, nil
}

func (stubBackend) Logout(context.Context, string) error { return nil }

func (stubBackend) Register(context.Context, goSession.Registration) error { return nil }

func newGateFixture(t *testing.T) (*goSession.Engine, *Gate) {
	t.Helper()

	now := func() time.Time { return gateNow }
	store := session.NewMemoryStore(now)
	engine, err := goSession.New().
		WithStore(store).
		WithBackend(stubBackend{}).
		WithClock(now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	nowMs := gateNow.UnixMilli()
	records := map[string]*session.Token{
		"usable":      {AccessToken: "a", AccessTokenExpiresAtMs: nowMs + 60_000, RefreshToken: "r"},
		"recoverable": {AccessToken: "a", AccessTokenExpiresAtMs: nowMs - 1_000, RefreshToken: "r"},
		"skewed":      {AccessToken: "a", AccessTokenExpiresAtMs: nowMs + 4_000, RefreshToken: "r"},
		"expired":     {AccessToken: "a", AccessTokenExpiresAtMs: nowMs - 1_000},
		"errored":     {AccessToken: "a", AccessTokenExpiresAtMs: nowMs + 3_600_000, RefreshToken: "r", LastError: session.ErrorRefreshAccessToken},
	}
	for sid, tok := range records {
		if err := store.Save(context.Background(), sid, tok, time.Hour); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}
	return engine, NewGate(engine)
}

func newRequest(method, target, sid string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	if sid != "" {
		r.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	return r
}

func TestGateDecide(t *testing.T) {
	_, gate := newGateFixture(t)

	tests := []struct {
		name     string
		target   string
		sid      string
		kind     DecisionKind
		state    token.State
		location string
	}{
		{"excluded asset", "/static/app.js", "", Admit, token.StateInvalid, ""},
		{"auth endpoint", "/api/auth/login", "", Admit, token.StateInvalid, ""},
		{"usable", "/posts/1", "usable", Admit, token.StateUsable, ""},
		{"recoverable", "/posts/1", "recoverable", Admit, token.StateRecoverable, ""},
		{"inside skew", "/posts/1", "skewed", Admit, token.StateRecoverable, ""},
		{"no cookie", "/posts/42?tab=comments", "", Redirect, token.StateInvalid, "/login?callbackUrl=%2Fposts%2F42%3Ftab%3Dcomments"},
		{"unknown session", "/posts/1", "missing", Redirect, token.StateInvalid, "/login?callbackUrl=%2Fposts%2F1"},
		{"expired without refresh", "/posts/1", "expired", Redirect, token.StateInvalid, "/login?callbackUrl=%2Fposts%2F1"},
		{"error sentinel", "/", "errored", Redirect, token.StateInvalid, "/login?callbackUrl=%2F"},
		{"login while usable", "/login", "usable", Redirect, token.StateUsable, "/"},
		{"register while recoverable", "/register", "recoverable", Redirect, token.StateRecoverable, "/"},
		{"login while invalid", "/login", "errored", Admit, token.StateInvalid, ""},
		{"login without session", "/login", "", Admit, token.StateInvalid, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Decide(newRequest(http.MethodGet, tt.target, tt.sid))
			if d.Kind != tt.kind || d.State != tt.state || d.Location != tt.location {
				t.Fatalf("got %s state=%s location=%q, want %s state=%s location=%q",
					d.Kind, d.State, d.Location, tt.kind, tt.state, tt.location)
			}
		})
	}
}

func TestGuardTranslatesDecisions(t *testing.T) {
	engine, gate := newGateFixture(t)

	var seenSID string
	var seenState token.State
	handler := Guard(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenSID, _ = goSession.SessionIDFromContext(r.Context())
		seenState = goSession.SessionStateFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/posts/1", "recoverable"))
	if rec.Code != http.StatusOK || seenSID != "recoverable" || seenState != token.StateRecoverable {
		t.Fatalf("expected admission with context, got %d sid=%q state=%s", rec.Code, seenSID, seenState)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/posts/1", ""))
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/login?callbackUrl=%2Fposts%2F1" {
		t.Fatalf("expected 307 to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodPost, "/posts/1", "expired"))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 for POST, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/api/posts", "errored"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for API route, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Detail == "" {
		t.Fatalf("expected JSON detail, got %v %+v", err, body)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[goSession.MetricGateAdmit] != 1 ||
		snap.Counters[goSession.MetricGateRedirect] != 2 ||
		snap.Counters[goSession.MetricGateUnauthorized] != 1 {
		t.Fatalf("unexpected gate metrics: %v", snap.Counters)
	}
}

func TestRequireSession(t *testing.T) {
	engine, _ := newGateFixture(t)
	handler := RequireSession(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for sid, want := range map[string]int{
		"usable":      http.StatusNoContent,
		"recoverable": http.StatusNoContent,
		"expired":     http.StatusUnauthorized,
		"errored":     http.StatusUnauthorized,
		"":            http.StatusUnauthorized,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newRequest(http.MethodGet, "/api/proxy/posts", sid))
		if rec.Code != want {
			t.Fatalf("sid %q: expected %d, got %d", sid, want, rec.Code)
		}
	}
}

func TestRedirectAuthenticated(t *testing.T) {
	_, gate := newGateFixture(t)
	handler := RedirectAuthenticated(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/login", "usable"))
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/login", "errored"))
	if rec.Code != http.StatusOK {
		t.Fatalf("invalid session must reach the login page, got %d", rec.Code)
	}
}

func TestGuardNilGateRejects(t *testing.T) {
	handler := Guard(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("nil gate must not admit")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
