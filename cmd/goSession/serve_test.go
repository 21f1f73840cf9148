package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/signature"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type upstreamRecord struct {
	mu            sync.Mutex
	path          string
	authorization string
	cookie        string
	clientKey     string
}

func newGatewayFixture(t *testing.T, mutate ...func(*goSession.Config)) (*goSession.Engine, http.Handler, *upstreamRecord) {
	t.Helper()

	rec := &upstreamRecord{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "rt-1",
			"token_type":    "bearer",
			"expires_in":    900,
		})
	})
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.path = r.URL.Path
		rec.clientKey = r.Header.Get(signature.HeaderClient)
		rec.mu.Unlock()
		if body.Username == "taken" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"detail":"User with that username or email already exists"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"username":"` + body.Username + `"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.path = r.URL.Path
		rec.authorization = r.Header.Get("Authorization")
		rec.cookie = r.Header.Get("Cookie")
		rec.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `"}`))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goSession.DefaultConfig()
	cfg.Backend.BaseURL = backend.URL
	for _, m := range mutate {
		m(&cfg)
	}
	engine, err := goSession.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	router, err := newRouter(engine, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return engine, router, rec
}

func doRequest(h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("response has no %q cookie", name)
	return nil
}

func login(t *testing.T, h http.Handler, callback string) *http.Cookie {
	t.Helper()
	body := `{"identifier":"alice@example.com","password":"correct","callbackUrl":"` + callback + `"}`
	w := doRequest(h, http.MethodPost, "/api/auth/login", body)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return sessionCookie(t, w, "sid")
}

func TestGatewayLoginSetsCookieAndSafeRedirect(t *testing.T) {
	_, h, _ := newGatewayFixture(t)

	tests := []struct {
		name     string
		callback string
		want     string
	}{
		{name: "empty uses home", callback: "", want: "/"},
		{name: "local path kept", callback: "/dashboard?tab=1", want: "/dashboard?tab=1"},
		{name: "protocol relative rejected", callback: "//evil.example", want: "/"},
		{name: "auth endpoint rejected", callback: "/api/auth/logout", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"identifier":"alice@example.com","password":"correct","callbackUrl":"` + tt.callback + `"}`
			w := doRequest(h, http.MethodPost, "/api/auth/login", body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var resp loginResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Redirect != tt.want {
				t.Fatalf("expected redirect %q, got %q", tt.want, resp.Redirect)
			}
			if c := sessionCookie(t, w, "sid"); c.Value == "" || !c.HttpOnly {
				t.Fatalf("unexpected session cookie %+v", c)
			}
		})
	}
}

func TestGatewayLoginRedirectHonorsAuthPrefix(t *testing.T) {
	_, h, _ := newGatewayFixture(t, func(c *goSession.Config) {
		c.Gate.AuthPrefix = "/session"
	})

	tests := []struct {
		callback string
		want     string
	}{
		{callback: "/session/logout", want: "/"},
		{callback: "/Session/login?next=1", want: "/"},
		{callback: "/api/auth/logout", want: "/api/auth/logout"},
	}

	for _, tt := range tests {
		body := `{"identifier":"alice@example.com","password":"correct","callbackUrl":"` + tt.callback + `"}`
		w := doRequest(h, http.MethodPost, "/session/login", body)
		if w.Code != http.StatusOK {
			t.Fatalf("callback %q: expected 200, got %d: %s", tt.callback, w.Code, w.Body.String())
		}
		var resp loginResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Redirect != tt.want {
			t.Fatalf("callback %q: expected redirect %q, got %q", tt.callback, tt.want, resp.Redirect)
		}
	}
}

func TestGatewayRegister(t *testing.T) {
	_, h, rec := newGatewayFixture(t)

	body := `{"username":"bob","email":"bob@example.com","password":"password1","name":"Bob"}`
	w := doRequest(h, http.MethodPost, "/api/auth/register", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Redirect != "/login" {
		t.Fatalf("expected redirect to /login, got %q", resp.Redirect)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "sid" {
			t.Fatal("registration must not create a session")
		}
	}
	rec.mu.Lock()
	path, key := rec.path, rec.clientKey
	rec.mu.Unlock()
	if path != "/api/v1/auth/register" || key != signature.ClientKey("bob@example.com") {
		t.Fatalf("unexpected upstream request path=%q client=%q", path, key)
	}

	w = doRequest(h, http.MethodPost, "/api/auth/register",
		`{"username":"taken","email":"t@example.com","password":"password1"}`)
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "already exists") {
		t.Fatalf("expected 409 with backend detail, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(h, http.MethodPost, "/api/auth/register", `{"username":"bob","email":"bob@example.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", w.Code)
	}

	w = doRequest(h, http.MethodPost, "/api/auth/register", `{`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestGatewayLoginRejected(t *testing.T) {
	_, h, _ := newGatewayFixture(t)

	w := doRequest(h, http.MethodPost, "/api/auth/login", `{"identifier":"alice","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("rejected login must not set cookies")
	}

	w = doRequest(h, http.MethodPost, "/api/auth/login", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestGatewaySessionEndpoint(t *testing.T) {
	_, h, _ := newGatewayFixture(t)

	w := doRequest(h, http.MethodGet, "/api/auth/session", "")
	var resp sessionResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if w.Code != http.StatusOK || resp.State != "invalid" {
		t.Fatalf("expected invalid state without cookie, got %d %+v", w.Code, resp)
	}

	c := login(t, h, "")
	w = doRequest(h, http.MethodGet, "/api/auth/session", "", c)
	resp = sessionResponse{}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.State != "usable" || !resp.HasRefreshToken || resp.ExpiresAtMs == 0 {
		t.Fatalf("unexpected session response %+v", resp)
	}
}

func TestGatewayProxyForwardsBearer(t *testing.T) {
	_, h, rec := newGatewayFixture(t)

	w := doRequest(h, http.MethodGet, "/api/proxy/items/7", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}

	c := login(t, h, "")
	w = doRequest(h, http.MethodGet, "/api/proxy/items/7", "", c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != `{"id":"7"}` {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.path != "/items/7" {
		t.Fatalf("expected upstream path /items/7, got %q", rec.path)
	}
	if rec.authorization != "Bearer access-1" {
		t.Fatalf("expected bearer header, got %q", rec.authorization)
	}
	if rec.cookie != "" {
		t.Fatalf("session cookie leaked upstream: %q", rec.cookie)
	}
}

func TestGatewayPagesAreGated(t *testing.T) {
	_, h, _ := newGatewayFixture(t)

	w := doRequest(h, http.MethodGet, "/dashboard?tab=2", "")
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?callbackUrl=%2Fdashboard%3Ftab%3D2" {
		t.Fatalf("unexpected location %q", loc)
	}

	w = doRequest(h, http.MethodGet, "/static/app.js", "")
	if w.Code != http.StatusOK {
		t.Fatalf("excluded asset should be served, got %d", w.Code)
	}

	w = doRequest(h, http.MethodGet, "/login", "")
	if w.Code != http.StatusOK {
		t.Fatalf("login page should render without a session, got %d", w.Code)
	}

	c := login(t, h, "")
	w = doRequest(h, http.MethodGet, "/dashboard", "", c)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "usable") {
		t.Fatalf("expected admitted page, got %d %q", w.Code, w.Body.String())
	}

	w = doRequest(h, http.MethodGet, "/login", "", c)
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/" {
		t.Fatalf("signed-in login page should redirect home, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestGatewayLogoutClearsSession(t *testing.T) {
	engine, h, _ := newGatewayFixture(t)

	c := login(t, h, "")
	w := doRequest(h, http.MethodPost, "/api/auth/logout", "", c)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if cleared := sessionCookie(t, w, "sid"); cleared.MaxAge >= 0 {
		t.Fatalf("expected cookie deletion, got MaxAge %d", cleared.MaxAge)
	}
	if _, err := engine.Session(t.Context(), c.Value); err == nil {
		t.Fatalf("session should be gone after logout")
	}

	w = doRequest(h, http.MethodGet, "/api/proxy/items/1", "", c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestGatewayMetricsEndpoint(t *testing.T) {
	_, h, _ := newGatewayFixture(t)
	login(t, h, "")

	w := doRequest(h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "gosession_login_success_total 1") {
		t.Fatalf("metrics output missing login counter:\n%s", w.Body.String())
	}
}
