package goSession

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/backend"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/signature"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Builder assembles an [Engine]. A Builder is single-use: the second call to
// Build fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store          session.Store
	backend        Backend
	tracerProvider trace.TracerProvider
	auditSink      AuditSink
	logger         *slog.Logger
	now            func() time.Time
	newSessionID   func() string

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is deep-copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for session records and, when enabled,
// the retry throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the session store. When set, Redis is only required for
// the retry throttle.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithBackend injects the credential backend instead of building an HTTP
// client from Config.Backend.
func (b *Builder) WithBackend(be Backend) *Builder {
	b.backend = be
	return b
}

// WithTracerProvider sets the tracer provider for backend calls.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithAuditSink sets the audit sink. It has no effect unless Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the wall clock, mainly for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithSessionIDGenerator overrides how new session IDs are minted.
func (b *Builder) WithSessionIDGenerator(fn func() string) *Builder {
	b.newSessionID = fn
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build fails when the builder was already used, the configuration is
// invalid, neither a Redis client nor a store was provided, no backend is
// available, or the retry throttle is enabled without Redis.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil && b.redis == nil {
		return nil, errors.New("redis client or session store required")
	}
	if cfg.Refresh.RetryThrottle && b.redis == nil {
		return nil, errors.New("Refresh RetryThrottle requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	newSessionID := b.newSessionID
	if newSessionID == nil {
		newSessionID = uuid.NewString
	}

	store := b.store
	if store == nil {
		codec, err := session.CodecFor(cfg.Session.Encoding)
		if err != nil {
			return nil, err
		}
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, codec, cfg.Session.SlidingTTL)
	}

	be := b.backend
	if be == nil {
		if cfg.Backend.BaseURL == "" {
			return nil, errors.New("Backend BaseURL required when no backend is injected")
		}
		opts := []backend.Option{
			backend.WithSigner(signature.Signer{Secret: cfg.Signature.Secret}),
		}
		if b.tracerProvider != nil {
			opts = append(opts, backend.WithTracerProvider(b.tracerProvider))
		}
		be = backend.New(backend.Config{
			BaseURL:      cfg.Backend.BaseURL,
			RefreshPath:  cfg.Backend.RefreshPath,
			LoginPath:    cfg.Backend.LoginPath,
			LogoutPath:   cfg.Backend.LogoutPath,
			RegisterPath: cfg.Backend.RegisterPath,
			Timeout:      cfg.Backend.Timeout,
		}, opts...)
	}

	engine := &Engine{
		config:       cfg,
		store:        store,
		backend:      be,
		logger:       logger,
		now:          now,
		newSessionID: newSessionID,
	}
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink, now)

	coordOpts := []refresh.Option{
		refresh.WithTimeout(cfg.Refresh.Timeout),
		refresh.WithHooks(engine.refreshHooks()),
		refresh.WithLogger(logger),
		refresh.WithClock(now),
	}
	if cfg.Refresh.RetryThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxTransientAttempts: cfg.Refresh.MaxTransientAttempts,
			Cooldown:             cfg.Refresh.RetryCooldown,
		})
		coordOpts = append(coordOpts, refresh.WithRetryPolicy(engine.limiter))
	}
	engine.coordinator = refresh.NewCoordinator(be, coordOpts...)
	engine.initFlowDeps()

	b.built = true
	return engine, nil
}
