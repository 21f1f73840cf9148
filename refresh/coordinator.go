package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/token"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single backend refresh call.
const DefaultTimeout = 10 * time.Second

// TokenPair is a newly issued credential pair. ExpiresAtMs is zero when the
// backend did not report an expiry.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAtMs  int64
}

// Refresher performs the network exchange of a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// RefresherFunc adapts a function to [Refresher].
type RefresherFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// Refresh implements [Refresher].
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return f(ctx, refreshToken)
}

// RetryPolicy gates repeated attempts for a refresh key after transient failures.
//
// Allow returning an error means the policy could not decide; the attempt
// proceeds. Record is called with the outcome of every attempt that reached the
// network.
type RetryPolicy interface {
	Allow(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string, kind FailureKind) error
}

// Hooks receive episode lifecycle events. Every field is optional.
type Hooks struct {
	OnStart     func(episodeID string)
	OnShared    func(episodeID string)
	OnSettle    func(res Result, elapsed time.Duration)
	OnThrottled func(episodeID string)
	OnDetached  func()
}

// Result is the outcome of one refresh as observed by one caller.
type Result struct {
	AccessToken            string
	RefreshToken           string
	AccessTokenExpiresAtMs int64

	Kind   FailureKind
	Status int
	Err    error

	// Shared is true when the caller attached to an episode started by another caller.
	Shared bool
	// Detached is true when the caller stopped waiting because its context ended.
	Detached  bool
	EpisodeID string
}

// OK reports whether the refresh succeeded.
func (r Result) OK() bool {
	return r.Kind == FailureNone
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithTimeout bounds each backend call. Non-positive values keep [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryPolicy installs a policy consulted before each backend call.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Coordinator) { c.retry = p }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(c *Coordinator) { c.hooks = h }
}

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for expiry fallback and latency.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator owns the episode table. It is safe for concurrent use and is meant
// to live as long as the process.
type Coordinator struct {
	refresher Refresher
	group     singleflight.Group
	pending   atomic.Int64
	waiting   atomic.Int64

	timeout time.Duration
	retry   RetryPolicy
	hooks   Hooks
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator creates a coordinator around r.
func NewCoordinator(r Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		refresher: r,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending reports the number of episodes currently in flight.
func (c *Coordinator) Pending() int {
	return int(c.pending.Load())
}

// Waiting reports the number of callers currently blocked on an episode.
func (c *Coordinator) Waiting() int {
	return int(c.waiting.Load())
}

// Key returns the episode key for a refresh token.
func Key(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

// Refresh exchanges refreshToken, joining an in-flight episode for the same token
// when one exists.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) Result {
	if refreshToken == "" {
		return Result{Kind: FailureTerminal, Err: ErrNoRefreshToken}
	}

	key := Key(refreshToken)

	var leader bool
	ch := c.group.DoChan(key, func() (any, error) {
		leader = true
		return c.runEpisode(context.WithoutCancel(ctx), key, refreshToken), nil
	})
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	select {
	case out := <-ch:
		res := out.Val.(Result)
		if !leader {
			res.Shared = true
			if c.hooks.OnShared != nil {
				c.hooks.OnShared(res.EpisodeID)
			}
		}
		return res
	case <-ctx.Done():
		if c.hooks.OnDetached != nil {
			c.hooks.OnDetached()
		}
		return Result{Kind: FailureTransient, Err: ctx.Err(), Detached: true}
	}
}

func (c *Coordinator) runEpisode(ctx context.Context, key, refreshToken string) Result {
	c.pending.Add(1)
	defer c.pending.Add(-1)

	id := ulid.Make().String()
	if c.hooks.OnStart != nil {
		c.hooks.OnStart(id)
	}

	started := c.now()
	res := c.attempt(ctx, id, key, refreshToken)
	res.EpisodeID = id
	elapsed := c.now().Sub(started)

	if res.OK() {
		c.logger.Debug("goSession: refresh succeeded", "episode", id, "elapsed", elapsed)
	} else {
		c.logger.Warn("goSession: refresh failed",
			"episode", id,
			"kind", res.Kind.String(),
			"status", res.Status,
			"error", res.Err,
		)
	}
	if c.hooks.OnSettle != nil {
		c.hooks.OnSettle(res, elapsed)
	}
	return res
}

func (c *Coordinator) attempt(ctx context.Context, id, key, refreshToken string) Result {
	if c.refresher == nil {
		return Result{Kind: FailureTransient, Err: ErrNilRefresher}
	}

	if c.retry != nil {
		allowed, err := c.retry.Allow(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("goSession: retry policy unavailable", "episode", id, "error", err)
		case !allowed:
			if c.hooks.OnThrottled != nil {
				c.hooks.OnThrottled(id)
			}
			return Result{Kind: FailureTransient, Err: ErrRetryThrottled}
		}
	}

	pair, err := c.call(ctx, refreshToken)

	var res Result
	if err != nil {
		kind, status := ClassifyError(err)
		res = Result{Kind: kind, Status: status, Err: err}
	} else {
		next := pair.RefreshToken
		if next == "" {
			next = refreshToken
		}
		res = Result{
			AccessToken:            pair.AccessToken,
			RefreshToken:           next,
			AccessTokenExpiresAtMs: token.IssuedExpiry(pair.AccessToken, pair.ExpiresAtMs, c.now()),
		}
	}

	if c.retry != nil {
		if err := c.retry.Record(ctx, key, res.Kind); err != nil {
			c.logger.Warn("goSession: retry policy record failed", "episode", id, "error", err)
		}
	}
	return res
}

// call runs the refresher under the episode timeout. A panic in the refresher
// would otherwise escape the singleflight goroutine and end the process, so it
// is reported as a transient failure instead.
func (c *Coordinator) call(ctx context.Context, refreshToken string) (pair TokenPair, err error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			pair = TokenPair{}
			err = fmt.Errorf("%w: %v", ErrRefresherPanicked, r)
		}
	}()
	return c.refresher.Refresh(callCtx, refreshToken)
}
