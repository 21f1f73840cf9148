package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingRefresher struct {
	calls   atomic.Int64
	release chan struct{}
	pair    TokenPair
	err     error

	mu      sync.Mutex
	lastCtx context.Context
}

func newBlockingRefresher() *blockingRefresher {
	return &blockingRefresher{
		release: make(chan struct{}),
		pair:    TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresAtMs: 1_700_000_900_000},
	}
}

func (b *blockingRefresher) Refresh(ctx context.Context, _ string) (TokenPair, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.lastCtx = ctx
	b.mu.Unlock()
	<-b.release
	if b.err != nil {
		return TokenPair{}, b.err
	}
	return b.pair, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCoordinatorSingleFlight(t *testing.T) {
	backend := newBlockingRefresher()
	c := NewCoordinator(backend)

	const n = 32
	results := make(chan Result, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- c.Refresh(context.Background(), "refresh-1")
		}()
	}

	waitFor(t, func() bool { return c.Waiting() == n })
	if c.Pending() != 1 {
		t.Fatalf("expected one pending episode, got %d", c.Pending())
	}
	close(backend.release)
	wg.Wait()
	close(results)

	if got := backend.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one backend call, got %d", got)
	}

	shared := 0
	var episode string
	for res := range results {
		if !res.OK() {
			t.Fatalf("unexpected failure: %+v", res)
		}
		if res.AccessToken != "access-2" || res.RefreshToken != "refresh-2" || res.AccessTokenExpiresAtMs != 1_700_000_900_000 {
			t.Fatalf("callers observed different outcomes: %+v", res)
		}
		if episode == "" {
			episode = res.EpisodeID
		} else if res.EpisodeID != episode {
			t.Fatalf("episode IDs differ: %s vs %s", episode, res.EpisodeID)
		}
		if res.Shared {
			shared++
		}
	}
	if shared != n-1 {
		t.Fatalf("expected %d shared results, got %d", n-1, shared)
	}
	if c.Pending() != 0 || c.Waiting() != 0 {
		t.Fatalf("episode table not drained: pending=%d waiting=%d", c.Pending(), c.Waiting())
	}
}

func TestCoordinatorDistinctTokensRunIndependently(t *testing.T) {
	var calls atomic.Int64
	c := NewCoordinator(RefresherFunc(func(_ context.Context, rt string) (TokenPair, error) {
		calls.Add(1)
		return TokenPair{AccessToken: "a-" + rt, RefreshToken: "r-" + rt}, nil
	}))

	a := c.Refresh(context.Background(), "one")
	b := c.Refresh(context.Background(), "two")
	if a.AccessToken != "a-one" || b.AccessToken != "a-two" {
		t.Fatalf("results crossed: %+v %+v", a, b)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCoordinatorStartsNewEpisodeAfterSettlement(t *testing.T) {
	var calls atomic.Int64
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		calls.Add(1)
		return TokenPair{}, &statusErr{status: 503}
	}))

	first := c.Refresh(context.Background(), "same")
	second := c.Refresh(context.Background(), "same")

	if calls.Load() != 2 {
		t.Fatalf("expected a new call per settled episode, got %d", calls.Load())
	}
	if first.EpisodeID == "" || first.EpisodeID == second.EpisodeID {
		t.Fatalf("expected distinct episode IDs, got %q and %q", first.EpisodeID, second.EpisodeID)
	}
	if first.Shared || second.Shared {
		t.Fatal("sequential calls must not be shared")
	}
}

func TestCoordinatorEmptyTokenIsTerminalWithoutCall(t *testing.T) {
	var calls atomic.Int64
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		calls.Add(1)
		return TokenPair{}, nil
	}))

	res := c.Refresh(context.Background(), "")
	if res.Kind != FailureTerminal || !errors.Is(res.Err, ErrNoRefreshToken) {
		t.Fatalf("expected terminal ErrNoRefreshToken, got %+v", res)
	}
	if calls.Load() != 0 {
		t.Fatal("no network call expected without a refresh token")
	}
}

func TestCoordinatorClassifiesFailures(t *testing.T) {
	cases := []struct {
		err    error
		kind   FailureKind
		status int
	}{
		{&statusErr{status: 401}, FailureTerminal, 401},
		{&statusErr{status: 503}, FailureTransient, 503},
		{&statusErr{status: 429}, FailureTransient, 429},
		{errors.New("dial tcp: connection refused"), FailureTransient, 0},
	}
	for _, tc := range cases {
		c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
			return TokenPair{}, tc.err
		}))
		res := c.Refresh(context.Background(), "rt")
		if res.Kind != tc.kind || res.Status != tc.status || !errors.Is(res.Err, tc.err) {
			t.Fatalf("%v: got %+v", tc.err, res)
		}
		if res.AccessToken != "" || res.RefreshToken != "" {
			t.Fatalf("failure must not carry tokens: %+v", res)
		}
	}
}

func TestCoordinatorCanceledCallerDetaches(t *testing.T) {
	backend := newBlockingRefresher()
	c := NewCoordinator(backend)

	ctx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan Result, 1)
	go func() { leaderDone <- c.Refresh(ctx, "rt") }()
	waitFor(t, func() bool { return backend.calls.Load() == 1 })

	followerDone := make(chan Result, 1)
	go func() { followerDone <- c.Refresh(context.Background(), "rt") }()
	waitFor(t, func() bool { return c.Waiting() == 2 })

	cancel()
	leader := <-leaderDone
	if !leader.Detached || leader.Kind != FailureTransient || !errors.Is(leader.Err, context.Canceled) {
		t.Fatalf("expected detached transient result, got %+v", leader)
	}

	backend.mu.Lock()
	callCtx := backend.lastCtx
	backend.mu.Unlock()
	if callCtx.Err() != nil {
		t.Fatalf("backend call must survive caller cancellation: %v", callCtx.Err())
	}

	close(backend.release)
	follower := <-followerDone
	if !follower.OK() || follower.AccessToken != "access-2" {
		t.Fatalf("follower should receive the settled outcome, got %+v", follower)
	}
	if backend.calls.Load() != 1 {
		t.Fatalf("expected one backend call, got %d", backend.calls.Load())
	}
	waitFor(t, func() bool { return c.Pending() == 0 })
}

func TestCoordinatorTimeoutIsTransient(t *testing.T) {
	c := NewCoordinator(RefresherFunc(func(ctx context.Context, _ string) (TokenPair, error) {
		<-ctx.Done()
		return TokenPair{}, ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	res := c.Refresh(context.Background(), "rt")
	if res.Kind != FailureTransient || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected transient deadline failure, got %+v", res)
	}
}

func TestCoordinatorRecoversRefresherPanic(t *testing.T) {
	var calls atomic.Int64
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		if calls.Add(1) == 1 {
			panic("backend exploded")
		}
		return TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
	}))

	res := c.Refresh(context.Background(), "rt")
	if res.Kind != FailureTransient || !errors.Is(res.Err, ErrRefresherPanicked) {
		t.Fatalf("expected transient panic failure, got %+v", res)
	}
	if res.EpisodeID == "" {
		t.Fatal("expected the failed episode to carry an ID")
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending episodes after a panic, got %d", c.Pending())
	}

	next := c.Refresh(context.Background(), "rt")
	if !next.OK() || next.AccessToken != "access-2" {
		t.Fatalf("expected the next episode to succeed, got %+v", next)
	}
}

func TestCoordinatorKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		return TokenPair{AccessToken: "opaque"}, nil
	}), WithClock(func() time.Time { return now }))

	res := c.Refresh(context.Background(), "keep-me")
	if !res.OK() || res.RefreshToken != "keep-me" {
		t.Fatalf("expected old refresh token to be kept, got %+v", res)
	}
	if res.AccessTokenExpiresAtMs != now.Add(14*time.Minute).UnixMilli() {
		t.Fatalf("expected fallback lifetime expiry, got %d", res.AccessTokenExpiresAtMs)
	}
}

type fakePolicy struct {
	mu       sync.Mutex
	allow    bool
	allowErr error
	recorded []FailureKind
}

func (p *fakePolicy) Allow(context.Context, string) (bool, error) {
	return p.allow, p.allowErr
}

func (p *fakePolicy) Record(_ context.Context, _ string, kind FailureKind) error {
	p.mu.Lock()
	p.recorded = append(p.recorded, kind)
	p.mu.Unlock()
	return nil
}

func TestCoordinatorRetryPolicyDenies(t *testing.T) {
	var calls atomic.Int64
	var throttled atomic.Int64
	policy := &fakePolicy{allow: false}
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		calls.Add(1)
		return TokenPair{AccessToken: "x"}, nil
	}), WithRetryPolicy(policy), WithHooks(Hooks{
		OnThrottled: func(string) { throttled.Add(1) },
	}))

	res := c.Refresh(context.Background(), "rt")
	if res.Kind != FailureTransient || !errors.Is(res.Err, ErrRetryThrottled) {
		t.Fatalf("expected throttled transient result, got %+v", res)
	}
	if calls.Load() != 0 || throttled.Load() != 1 {
		t.Fatalf("calls=%d throttled=%d", calls.Load(), throttled.Load())
	}
	if len(policy.recorded) != 0 {
		t.Fatal("throttled attempts must not be recorded")
	}
}

func TestCoordinatorRetryPolicyFailsOpen(t *testing.T) {
	policy := &fakePolicy{allowErr: errors.New("redis down")}
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		return TokenPair{}, &statusErr{status: 502}
	}), WithRetryPolicy(policy))

	res := c.Refresh(context.Background(), "rt")
	if res.Status != 502 {
		t.Fatalf("expected the call to proceed, got %+v", res)
	}
	if len(policy.recorded) != 1 || policy.recorded[0] != FailureTransient {
		t.Fatalf("expected one transient record, got %v", policy.recorded)
	}
}

func TestCoordinatorHooks(t *testing.T) {
	var started, settled atomic.Int64
	var settledElapsed atomic.Int64
	c := NewCoordinator(RefresherFunc(func(context.Context, string) (TokenPair, error) {
		return TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
	}), WithHooks(Hooks{
		OnStart: func(string) { started.Add(1) },
		OnSettle: func(res Result, elapsed time.Duration) {
			if res.OK() {
				settled.Add(1)
			}
			settledElapsed.Store(int64(elapsed))
		},
	}))

	c.Refresh(context.Background(), "rt")
	if started.Load() != 1 || settled.Load() != 1 {
		t.Fatalf("started=%d settled=%d", started.Load(), settled.Load())
	}
	if settledElapsed.Load() < 0 {
		t.Fatal("negative elapsed time")
	}
}

func TestKeyDoesNotExposeToken(t *testing.T) {
	key := Key("super-secret-refresh")
	if len(key) != 64 {
		t.Fatalf("expected hex sha256 key, got %q", key)
	}
	if key == "super-secret-refresh" || Key("other") == key {
		t.Fatal("key must be a digest of the token")
	}
}
