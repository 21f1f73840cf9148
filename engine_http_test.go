package goSession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goSession/signature"
)

// End to end over HTTP: the builder constructs the backend client from config.
func TestEngineBuildsHTTPBackendFromConfig(t *testing.T) {
	var refreshes atomic.Int64
	var loginClient, loginSig string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		loginClient = r.Header.Get(signature.HeaderClient)
		loginSig = r.Header.Get(signature.HeaderSignature)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "opaque-access-1",
			"refresh_token": "rt-1",
			"token_type":    "bearer",
			"expires_in":    1,
		})
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		c, err := r.Cookie("refresh_token")
		if err != nil || c.Value != "rt-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid refresh token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "opaque-access-2",
			"refresh_token": "rt-2",
			"token_type":    "bearer",
			"expires_in":    900,
		})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	cfg.Signature.Secret = "shared-secret"

	e, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	ctx := context.Background()

	sid, err := e.Login(ctx, "Bob@Example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	wantKey := signature.ClientKey("bob@example.com")
	if loginClient != wantKey {
		t.Fatalf("expected client key %q, got %q", wantKey, loginClient)
	}
	if _, ok := signature.Verify("shared-secret", loginClient, loginSig); !ok {
		t.Fatalf("login signature does not verify")
	}

	// expires_in of one second is inside the skew window, so the first use refreshes.
	access, err := e.AccessToken(ctx, sid)
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if access != "opaque-access-2" || refreshes.Load() != 1 {
		t.Fatalf("expected one refresh, got %q after %d calls", access, refreshes.Load())
	}

	access, err = e.AccessToken(ctx, sid)
	if err != nil || access != "opaque-access-2" {
		t.Fatalf("second access token: %q %v", access, err)
	}
	if refreshes.Load() != 1 {
		t.Fatalf("fresh token must not refresh again")
	}

	if err := e.Logout(ctx, sid); err != nil {
		t.Fatalf("logout: %v", err)
	}
}
