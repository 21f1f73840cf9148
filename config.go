package goSession

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config is the complete engine configuration. Build one with [DefaultConfig]
// and adjust the sections you need; [Builder.Build] validates it.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Backend   BackendConfig   `yaml:"backend"`
	Signature SignatureConfig `yaml:"signature"`
	Gate      GateConfig      `yaml:"gate"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SessionConfig controls how session records are stored and addressed.
type SessionConfig struct {
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
	// SlidingTTL, when positive, extends a record's TTL on every read.
	SlidingTTL time.Duration `yaml:"sliding_ttl"`
	// Encoding is "binary" or "cbor".
	Encoding       string `yaml:"encoding"`
	CookieName     string `yaml:"cookie_name"`
	CookiePath     string `yaml:"cookie_path"`
	CookieSecure   bool   `yaml:"cookie_secure"`
	CookieSameSite string `yaml:"cookie_same_site"`
}

// RefreshConfig controls the refresh coordinator.
type RefreshConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// RetryThrottle enables the Redis retry throttle for transient failures.
	RetryThrottle        bool          `yaml:"retry_throttle"`
	MaxTransientAttempts int           `yaml:"max_transient_attempts"`
	RetryCooldown        time.Duration `yaml:"retry_cooldown"`
}

// BackendConfig locates the credential backend.
type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"`
	RefreshPath  string        `yaml:"refresh_path"`
	LoginPath    string        `yaml:"login_path"`
	LogoutPath   string        `yaml:"logout_path"`
	RegisterPath string        `yaml:"register_path"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SignatureConfig holds the shared client-signature secret. An empty secret
// sends unsigned client keys.
type SignatureConfig struct {
	Secret string `yaml:"secret"`
}

// GateConfig describes the routes the session gate treats specially.
type GateConfig struct {
	LoginPath     string `yaml:"login_path"`
	HomePath      string `yaml:"home_path"`
	CallbackParam string `yaml:"callback_param"`
	// AuthPrefix is the session layer's own endpoint prefix; redirect targets
	// under it are rejected.
	AuthPrefix string `yaml:"auth_prefix"`
	// APIPrefix marks routes answered with JSON 401 instead of a redirect.
	APIPrefix        string   `yaml:"api_prefix"`
	AuthPages        []string `yaml:"auth_pages"`
	ExcludedPrefixes []string `yaml:"excluded_prefixes"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:    "gs",
			TTL:            30 * 24 * time.Hour,
			Encoding:       "binary",
			CookieName:     "sid",
			CookiePath:     "/",
			CookieSecure:   true,
			CookieSameSite: "lax",
		},
		Refresh: RefreshConfig{
			Timeout:              10 * time.Second,
			RetryThrottle:        false,
			MaxTransientAttempts: 5,
			RetryCooldown:        30 * time.Second,
		},
		Backend: BackendConfig{
			RefreshPath:  "/api/v1/auth/refresh",
			LoginPath:    "/api/v1/auth/login",
			LogoutPath:   "/api/v1/auth/logout",
			RegisterPath: "/api/v1/auth/register",
			Timeout:      10 * time.Second,
		},
		Gate: GateConfig{
			LoginPath:     "/login",
			HomePath:      "/",
			CallbackParam: "callbackUrl",
			AuthPrefix:    "/api/auth",
			APIPrefix:     "/api/",
			AuthPages:     []string{"/login", "/register"},
			ExcludedPrefixes: []string{
				"/static/",
				"/assets/",
				"/favicon.ico",
				"/manifest.json",
				"/manifest.webmanifest",
				"/robots.txt",
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns a fresh copy of the default configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Gate.AuthPages = cloneStrings(cfg.Gate.AuthPages)
	out.Gate.ExcludedPrefixes = cloneStrings(cfg.Gate.ExcludedPrefixes)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.SlidingTTL < 0 {
		return errors.New("Session SlidingTTL must be >= 0")
	}
	if c.Session.Encoding != "binary" && c.Session.Encoding != "cbor" {
		return errors.New("Session Encoding must be binary or cbor")
	}
	if c.Session.CookieName == "" {
		return errors.New("Session CookieName must be set")
	}
	if _, ok := parseSameSite(c.Session.CookieSameSite); !ok {
		return errors.New("Session CookieSameSite must be lax, strict or none")
	}
	if strings.EqualFold(c.Session.CookieSameSite, "none") && !c.Session.CookieSecure {
		return errors.New("Session CookieSameSite none requires CookieSecure")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.RetryThrottle {
		if c.Refresh.MaxTransientAttempts <= 0 {
			return errors.New("Refresh MaxTransientAttempts must be > 0 when RetryThrottle is true")
		}
		if c.Refresh.RetryCooldown <= 0 {
			return errors.New("Refresh RetryCooldown must be > 0 when RetryThrottle is true")
		}
	}

	// Backend
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}
	for name, p := range map[string]string{
		"RefreshPath":  c.Backend.RefreshPath,
		"LoginPath":    c.Backend.LoginPath,
		"LogoutPath":   c.Backend.LogoutPath,
		"RegisterPath": c.Backend.RegisterPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Backend " + name + " must start with /")
		}
	}

	// Gate
	if !strings.HasPrefix(c.Gate.LoginPath, "/") || !strings.HasPrefix(c.Gate.HomePath, "/") {
		return errors.New("Gate LoginPath and HomePath must start with /")
	}
	if c.Gate.CallbackParam == "" {
		return errors.New("Gate CallbackParam must be set")
	}
	if !strings.HasPrefix(c.Gate.AuthPrefix, "/") {
		return errors.New("Gate AuthPrefix must start with /")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(v) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
