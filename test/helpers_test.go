//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/backend"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns the Redis backends to test. miniredis is always present.
// REDIS_ADDR adds a standalone server and REDIS_CLUSTER_ADDRS
// (comma-separated) adds a cluster.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// countingBackend issues opaque pairs and counts refresh calls per token.
type countingBackend struct {
	latency time.Duration
	seq     atomic.Int64
	calls   atomic.Int64
}

func (b *countingBackend) Login(_ context.Context, identifier, _ string) (refresh.TokenPair, error) {
	n := strconv.FormatInt(b.seq.Add(1), 10)
	return refresh.TokenPair{
		AccessToken:  "access-" + n,
		RefreshToken: "refresh-" + identifier + "-" + n,
		// Inside the skew window, so the first use refreshes.
		ExpiresAtMs: time.Now().Add(time.Second).UnixMilli(),
	}, nil
}

func (b *countingBackend) Refresh(ctx context.Context, refreshToken string) (refresh.TokenPair, error) {
	b.calls.Add(1)
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

func (b *countingBackend) Logout(context.Context, string) error { return nil }

func (b *countingBackend) Register(context.Context, backend.Registration) error { return nil }
