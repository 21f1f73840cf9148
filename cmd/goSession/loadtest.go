package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/spf13/cobra"
)

type loadtestOptions struct {
	sessions       int
	callers        int
	reads          int
	concurrency    int
	backendLatency time.Duration
	redisAddr      string
}

func loadtestCmd() *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure refresh coalescing and session read latency",
		Long: `Seed sessions whose access tokens are about to expire, then hit each
one with concurrent AccessToken calls. Callers racing on a session share
one backend refresh; the report counts any late episodes separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.sessions <= 0 || opts.callers <= 0 || opts.reads <= 0 || opts.concurrency <= 0 {
				return fmt.Errorf("sessions, callers, reads, and concurrency must be > 0")
			}
			return runLoadtest(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.sessions, "sessions", 1000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.callers, "callers", 32, "concurrent AccessToken callers per session")
	cmd.Flags().IntVar(&opts.reads, "reads", 100000, "AccessToken calls in the fresh-token phase")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "workers in the fresh-token phase")
	cmd.Flags().DurationVar(&opts.backendLatency, "backend-latency", 20*time.Millisecond, "simulated backend refresh latency")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address (default $REDIS_ADDR, embedded miniredis when unset)")

	return cmd
}

// simulatedBackend issues opaque tokens in-process. Logins return tokens
// that are already inside the refresh skew window.
type simulatedBackend struct {
	latency   time.Duration
	seq       atomic.Int64
	refreshes atomic.Int64
}

func (b *simulatedBackend) Login(_ context.Context, identifier, _ string) (refresh.TokenPair, error) {
	n := strconv.FormatInt(b.seq.Add(1), 10)
	return refresh.TokenPair{
		AccessToken:  "access-" + n,
		RefreshToken: "refresh-" + identifier + "-" + n,
		ExpiresAtMs:  time.Now().Add(time.Second).UnixMilli(),
	}, nil
}

func (b *simulatedBackend) Refresh(ctx context.Context, refreshToken string) (refresh.TokenPair, error) {
	b.refreshes.Add(1)
	select {
	case <-time.After(b.latency):
	case <-ctx.Done():
		return refresh.TokenPair{}, ctx.Err()
	}
	n := strconv.FormatInt(b.seq.Add(1), 10)
	return refresh.TokenPair{
		AccessToken:  "access-" + n,
		RefreshToken: refreshToken + "-r" + n,
		ExpiresAtMs:  time.Now().Add(15 * time.Minute).UnixMilli(),
	}, nil
}

func (b *simulatedBackend) Logout(context.Context, string) error { return nil }

func (b *simulatedBackend) Register(context.Context, goSession.Registration) error { return nil }

func runLoadtest(ctx context.Context, opts loadtestOptions, out io.Writer) error {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rdb, closeRedis, err := openRedis(ctx, redisAddr(opts.redisAddr), log)
	if err != nil {
		return err
	}
	defer closeRedis()

	backend := &simulatedBackend{latency: opts.backendLatency}
	cfg := goSession.DefaultConfig()
	cfg.Session.RedisPrefix = "gs-loadtest"

	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithBackend(backend).
		WithLogger(log).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	sids := make([]string, opts.sessions)
	for i := range sids {
		sid, err := engine.Login(ctx, "user-"+strconv.Itoa(i), "pw")
		if err != nil {
			return fmt.Errorf("seed session %d: %w", i, err)
		}
		sids[i] = sid
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	refreshStats := runRefreshPhase(ctx, engine, sids, opts.callers)
	readStats := runReadPhase(ctx, engine, sids, opts.reads, opts.concurrency)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "refresh", refreshStats)
	printStats(out, "fresh", readStats)

	// Callers that loaded the stale record before the winner saved it, but
	// reached the coordinator after the episode settled, start a second one.
	calls := backend.refreshes.Load()
	fmt.Fprintf(out, "backend refreshes=%d sessions=%d late=%d shared=%d\n",
		calls, opts.sessions, calls-int64(opts.sessions),
		engine.Metrics().Value(goSession.MetricRefreshShared))

	if refreshStats.failures > 0 || readStats.failures > 0 {
		return fmt.Errorf("%d refresh and %d read failures", refreshStats.failures, readStats.failures)
	}
	if calls < int64(opts.sessions) {
		return fmt.Errorf("expected at least %d backend refreshes, got %d", opts.sessions, calls)
	}
	return nil
}

// runRefreshPhase releases every caller at once so the callers of each
// session race on the same stale token.
func runRefreshPhase(ctx context.Context, engine *goSession.Engine, sids []string, callers int) phaseStats {
	var (
		wg        sync.WaitGroup
		failures  int64
		latencies = make([]time.Duration, 0, len(sids)*callers)
		mu        sync.Mutex
		release   = make(chan struct{})
	)

	for _, sid := range sids {
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func(sid string) {
				defer wg.Done()
				<-release
				t0 := time.Now()
				_, err := engine.AccessToken(ctx, sid)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}(sid)
		}
	}

	start := time.Now()
	close(release)
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runReadPhase(ctx context.Context, engine *goSession.Engine, sids []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := engine.AccessToken(ctx, sids[i%len(sids)])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	s := phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
	if total > 0 {
		s.opsPerS = float64(len(samples)) / total.Seconds()
	}
	return s
}

// percentile expects samples sorted ascending.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
