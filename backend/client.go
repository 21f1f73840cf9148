package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/signature"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RefreshCookie is the cookie the backend reads the refresh token from.
	RefreshCookie = "refresh_token"

	defaultTracerName = "github.com/MrEthical07/goSession/backend"
	maxBodyBytes      = 1 << 20
)

// Config describes the backend endpoints.
type Config struct {
	BaseURL      string
	RefreshPath  string
	LoginPath    string
	LogoutPath   string
	RegisterPath string
	Timeout      time.Duration
}

// DefaultConfig returns the backend's stock endpoint layout.
func DefaultConfig() Config {
	return Config{
		RefreshPath:  "/api/v1/auth/refresh",
		LoginPath:    "/api/v1/auth/login",
		LogoutPath:   "/api/v1/auth/logout",
		RegisterPath: "/api/v1/auth/register",
		Timeout:      10 * time.Second,
	}
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSigner sets the client-signature signer used on login.
func WithSigner(s signature.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(defaultTracerName)
		}
	}
}

// Client talks to the credential backend. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	signer signature.Signer
	tracer trace.Tracer
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	defaults := DefaultConfig()
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = defaults.RefreshPath
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = defaults.LoginPath
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = defaults.LogoutPath
	}
	if cfg.RegisterPath == "" {
		cfg.RegisterPath = defaults.RegisterPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer(defaultTracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is a new account request. Name and Bio are optional.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges refreshToken for a new pair. It satisfies [refresh.Refresher].
func (c *Client) Refresh(ctx context.Context, refreshToken string) (refresh.TokenPair, error) {
	ctx, span := c.tracer.Start(ctx, "backend.refresh", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := c.newJSONRequest(ctx, c.cfg.RefreshPath, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return refresh.TokenPair{}, endSpan(span, err)
	}
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refreshToken})

	var out tokenResponse
	if err := c.do(req, span, &out); err != nil {
		return refresh.TokenPair{}, endSpan(span, err)
	}
	pair, err := out.pair(time.Now())
	return pair, endSpan(span, err)
}

// Login authenticates identifier and password. The request carries client
// signature headers derived from identifier.
func (c *Client) Login(ctx context.Context, identifier, password string) (refresh.TokenPair, error) {
	ctx, span := c.tracer.Start(ctx, "backend.login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := c.newJSONRequest(ctx, c.cfg.LoginPath, loginRequest{Username: identifier, Password: password})
	if err != nil {
		return refresh.TokenPair{}, endSpan(span, err)
	}
	c.signer.Apply(req.Header, identifier)

	var out tokenResponse
	if err := c.do(req, span, &out); err != nil {
		return refresh.TokenPair{}, endSpan(span, err)
	}
	pair, err := out.pair(time.Now())
	return pair, endSpan(span, err)
}

// Register creates an account. Like Login, the request carries client
// signature headers, derived from the registration email.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	ctx, span := c.tracer.Start(ctx, "backend.register", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := c.newJSONRequest(ctx, c.cfg.RegisterPath, reg)
	if err != nil {
		return endSpan(span, err)
	}
	c.signer.Apply(req.Header, reg.Email)

	return endSpan(span, c.do(req, span, nil))
}

// Logout revokes refreshToken on the backend. An empty token is a no-op.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "backend.logout", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := c.newJSONRequest(ctx, c.cfg.LogoutPath, nil)
	if err != nil {
		return endSpan(span, err)
	}
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refreshToken})

	return endSpan(span, c.do(req, span, nil))
}

func (c *Client) newJSONRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, span trace.Span, out any) error {
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Detail: parseDetail(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (r tokenResponse) pair(now time.Time) (refresh.TokenPair, error) {
	if r.AccessToken == "" {
		return refresh.TokenPair{}, fmt.Errorf("%w: missing access_token", ErrMalformedResponse)
	}
	if r.TokenType != "" && !strings.EqualFold(r.TokenType, "bearer") {
		return refresh.TokenPair{}, fmt.Errorf("%w: unsupported token_type %q", ErrMalformedResponse, r.TokenType)
	}
	pair := refresh.TokenPair{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		pair.ExpiresAtMs = now.Add(time.Duration(r.ExpiresIn) * time.Second).UnixMilli()
	}
	return pair, nil
}

func parseDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || len(er.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var detail string
	if err := json.Unmarshal(er.Detail, &detail); err == nil {
		return detail
	}
	return string(er.Detail)
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
