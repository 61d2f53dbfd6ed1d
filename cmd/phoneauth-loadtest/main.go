// Command phoneauth-loadtest drives the engine's hot paths against Redis and
// prints latency percentiles per phase.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/sms"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type session struct {
	userID  string
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	client, cleanup, err := openRedis(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *users)
	startSeed := time.Now()
	sessions := make([]session, *users)
	for i := range sessions {
		user := phoneauth.UserRecord{UserID: fmt.Sprintf("user-%d", i), Role: "attendee", State: "active"}
		pair, err := engine.IssueTokens(ctx, user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		sessions[i] = session{userID: user.UserID, access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verify := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.VerifyAccessToken(sessions[r.Intn(len(sessions))].access)
		return err
	})

	refresh := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, _, err := engine.ExchangeRefresh(ctx, sessions[r.Intn(len(sessions))].refresh)
		return err
	})

	// Spread callers so most checks are allowed; denials are expected results.
	rate := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		id := fmt.Sprintf("ip:10.%d.%d.%d", r.Intn(256), r.Intn(256), r.Intn(256))
		_, err := engine.CheckRate(ctx, id, phoneauth.PolicyAPI)
		if errors.Is(err, phoneauth.ErrRateLimited) {
			return nil
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify", verify)
	printStats("refresh", refresh)
	printStats("rate", rate)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func buildEngine(client redis.UniversalClient) (*phoneauth.Engine, error) {
	cfg := phoneauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-access-secret-0000000001")
	cfg.JWT.RefreshPrivateKey = []byte("loadtest-refresh-secret-000000001")
	cfg.OTP.HashKey = []byte("loadtest-otp-pepper")

	return phoneauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithSMSGateway(sms.NewLogGateway(zap.NewNop())).
		Build()
}

// runPhase calls fn ops times across concurrency workers.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				err := fn(r, i)
				local = append(local, time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
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
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
