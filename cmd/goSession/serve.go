package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/backend"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

const (
	proxyPrefix     = "/api/proxy"
	maxLoginBody    = 64 << 10
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	var (
		configPath  string
		addr        string
		redisFlag   string
		frontendURL string
		logLevel    string
		auditLog    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session gateway",
		Long: `Run the session gateway.

Pages are gated on session state and either proxied to --frontend-url or
answered with a placeholder. Requests under /api/proxy/ are forwarded to the
backend with a fresh bearer token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			for _, w := range cfg.Lint() {
				log.Warn("goSession: config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rdb, closeRedis, err := openRedis(ctx, redisAddr(redisFlag), log)
			if err != nil {
				return err
			}
			defer closeRedis()

			var sink goSession.AuditSink
			if auditLog {
				cfg.Audit.Enabled = true
				sink = goSession.NewSlogSink(log)
			}
			engine, err := goSession.New().
				WithConfig(cfg).
				WithRedis(rdb).
				WithLogger(log).
				WithAuditSink(sink).
				Build()
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			defer engine.Close()

			var frontend *url.URL
			if frontendURL != "" {
				if frontend, err = url.Parse(frontendURL); err != nil {
					return fmt.Errorf("parse frontend url: %w", err)
				}
			}
			router, err := newRouter(engine, frontend)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(ctx, srv, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVar(&redisFlag, "redis-addr", "", "redis address (default $REDIS_ADDR, embedded miniredis when unset)")
	cmd.Flags().StringVar(&frontendURL, "frontend-url", "", "upstream for gated page requests")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&auditLog, "audit-log", false, "write audit events to the log")

	return cmd
}

func runServer(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("goSession: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("goSession: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter mounts the session endpoints, the backend proxy, metrics and the
// gated pages. A nil frontend answers pages with a placeholder.
func newRouter(engine *goSession.Engine, frontend *url.URL) (http.Handler, error) {
	cfg := engine.Config()
	backendURL, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	gate := middleware.NewGate(engine)
	h := &handlers{engine: engine, backend: newBackendProxy(backendURL)}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Route(cfg.Gate.AuthPrefix, func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/register", h.register)
		r.Post("/logout", h.logout)
		r.Get("/session", h.session)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(engine))
		r.Handle(proxyPrefix+"/*", http.HandlerFunc(h.proxy))
	})

	r.Handle("/metrics", prometheus.Handler(prometheus.NewCollector(engine)))

	pages := http.Handler(http.HandlerFunc(placeholderPage))
	if frontend != nil {
		pages = httputil.NewSingleHostReverseProxy(frontend)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RedirectAuthenticated(gate))
		for _, p := range cfg.Gate.AuthPages {
			r.Handle(p, pages)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(gate))
		r.NotFound(pages.ServeHTTP)
	})

	return r, nil
}

type handlers struct {
	engine  *goSession.Engine
	backend *httputil.ReverseProxy
}

type loginRequest struct {
	Identifier  string `json:"identifier"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackUrl"`
}

type loginResponse struct {
	Redirect string `json:"redirect"`
}

type sessionResponse struct {
	State           string `json:"state"`
	ExpiresAtMs     int64  `json:"expires_at_ms,omitempty"`
	LastError       string `json:"error,omitempty"`
	HasRefreshToken bool   `json:"has_refresh_token"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Malformed login request"})
		return
	}

	sid, err := h.engine.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeEngineError(w, h.engine, err)
		return
	}

	http.SetCookie(w, h.engine.SessionCookie(sid))
	target := h.engine.Config().Gate.HomePath
	if req.CallbackURL != "" {
		target = middleware.ResolveSafeRedirectTargetFor(req.CallbackURL, h.engine.Config().Gate.AuthPrefix)
	}
	writeJSON(w, http.StatusOK, loginResponse{Redirect: target})
}

// register forwards a new account to the backend and points the client at
// the login page. No session is created.
func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req goSession.Registration
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Malformed registration request"})
		return
	}

	if err := h.engine.Register(r.Context(), req); err != nil {
		writeEngineError(w, h.engine, err)
		return
	}
	writeJSON(w, http.StatusCreated, loginResponse{Redirect: h.engine.Config().Gate.LoginPath})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), h.engine.SessionIDFromRequest(r)); err != nil {
		writeEngineError(w, h.engine, err)
		return
	}
	http.SetCookie(w, h.engine.ClearSessionCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	sid := h.engine.SessionIDFromRequest(r)
	state := h.engine.State(r.Context(), sid)

	resp := sessionResponse{State: state.String()}
	if tok, err := h.engine.Session(r.Context(), sid); err == nil {
		resp.ExpiresAtMs = tok.AccessTokenExpiresAtMs
		resp.LastError = string(tok.LastError)
		resp.HasRefreshToken = tok.RefreshToken != ""
	}
	writeJSON(w, http.StatusOK, resp)
}

// proxy forwards the request to the backend with the session's access token.
// The session cookie is not forwarded.
func (h *handlers) proxy(w http.ResponseWriter, r *http.Request) {
	sid, _ := goSession.SessionIDFromContext(r.Context())
	access, err := h.engine.AccessToken(r.Context(), sid)
	if err != nil {
		writeEngineError(w, h.engine, err)
		return
	}

	out := r.Clone(r.Context())
	out.URL.Path = "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	out.URL.RawPath = ""
	out.Header.Set("Authorization", "Bearer "+access)
	h.backend.ServeHTTP(w, out)
}

func newBackendProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
		},
	}
}

// writeEngineError maps engine errors onto HTTP responses. Credential
// failures also clear the session cookie.
func writeEngineError(w http.ResponseWriter, engine *goSession.Engine, err error) {
	switch {
	case errors.Is(err, goSession.ErrLoginRejected):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Invalid credentials"})
	case errors.Is(err, goSession.ErrRegistrationRejected):
		status, detail := http.StatusBadRequest, "Registration rejected"
		var se *backend.StatusError
		if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
			status = se.Status
			if se.Detail != "" {
				detail = se.Detail
			}
		}
		writeJSON(w, status, errorResponse{Detail: detail})
	case errors.Is(err, goSession.ErrSessionNotFound),
		errors.Is(err, goSession.ErrSessionInvalid),
		errors.Is(err, goSession.ErrSessionExpired),
		errors.Is(err, goSession.ErrRefreshRejected):
		http.SetCookie(w, engine.ClearSessionCookie())
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Not authenticated"})
	case errors.Is(err, goSession.ErrRefreshUnavailable),
		errors.Is(err, goSession.ErrBackendUnavailable):
		writeJSON(w, http.StatusBadGateway, errorResponse{Detail: "Backend unavailable"})
	default:
		engine.Logger().Error("goSession: request failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Service unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func placeholderPage(w http.ResponseWriter, r *http.Request) {
	state := goSession.SessionStateFromContext(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s %s (session %s)\n", r.Method, r.URL.Path, state)
}
