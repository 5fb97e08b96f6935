// Command go2fa-loadtest measures verify latency against a Redis-backed
// engine and checks that a backup code raced across two engines is
// accepted exactly once.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/internal/backupcodes"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

type seededUser struct {
	id     string
	secret string
	codes  []string
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of enrolled users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "verify operations in the latency phase")
		racers      = flag.Int("racers", 32, "concurrent submissions of one backup code per race")
		races       = flag.Int("races", 50, "number of backup code races")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tfa-load", "profile key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 || *races <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and races must be > 0; racers must be > 1")
		os.Exit(2)
	}
	if *races > *users {
		*races = *users
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	// Two engines share the store but not their in-process locks, so the
	// race phase exercises the Redis compare-and-swap path.
	primary, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer primary.Close()
	secondary, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer secondary.Close()

	fmt.Printf("enrolling %d users...\n", *users)
	startSeed := time.Now()
	seeded := make([]seededUser, *users)
	for i := range seeded {
		u, err := enroll(ctx, primary, fmt.Sprintf("load-user-%d", i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "enroll failed: %v\n", err)
			os.Exit(1)
		}
		seeded[i] = u
	}
	fmt.Printf("enrolled in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runVerifyPhase(ctx, primary, seeded, *ops, *concurrency)
	raceFailures := runRacePhase(ctx, []*go2fa.Engine{primary, secondary}, seeded[:*races], *racers)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	fmt.Printf("backup-code races: %d run, %d violated single use\n", *races, raceFailures)
	if raceFailures > 0 {
		os.Exit(1)
	}
}

func newEngine(client redis.UniversalClient, prefix string) (*go2fa.Engine, error) {
	cfg := go2fa.DefaultConfig()
	cfg.TOTP.Issuer = "go2fa-loadtest"
	cfg.Concurrency.MaxCASRetries = 64
	return go2fa.New().WithConfig(cfg).WithRedis(client, prefix).Build()
}

func enroll(ctx context.Context, e *go2fa.Engine, userID string) (seededUser, error) {
	enrollment, err := e.BeginEnrollment(ctx, userID, userID+"@load.test")
	if err != nil {
		return seededUser{}, err
	}
	code, err := totp.GenerateCode(enrollment.ManualEntryCode, time.Now())
	if err != nil {
		return seededUser{}, err
	}
	res, err := e.ConfirmEnrollment(ctx, userID, code)
	if err != nil {
		return seededUser{}, err
	}
	return seededUser{id: userID, secret: enrollment.ManualEntryCode, codes: res.BackupCodes}, nil
}

func runVerifyPhase(ctx context.Context, e *go2fa.Engine, users []seededUser, ops, concurrency int) phaseStats {
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
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				u := users[r.Intn(len(users))]
				code, err := totp.GenerateCode(u.secret, time.Now())
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				t0 := time.Now()
				_, err = e.Verify(ctx, u.id, code)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRacePhase submits each user's first backup code from racers goroutines
// split across engines and returns how many races did not end with exactly
// one success.
func runRacePhase(ctx context.Context, engines []*go2fa.Engine, users []seededUser, racers int) int {
	violations := 0
	for _, u := range users {
		code := backupcodes.Format(u.codes[0])

		var (
			wg        sync.WaitGroup
			successes int64
			gate      = make(chan struct{})
		)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func(e *go2fa.Engine) {
				defer wg.Done()
				<-gate
				if _, err := e.Verify(ctx, u.id, code); err == nil {
					atomic.AddInt64(&successes, 1)
				}
			}(engines[r%len(engines)])
		}
		close(gate)
		wg.Wait()

		if successes != 1 {
			violations++
			fmt.Fprintf(os.Stderr, "user %s: %d successes for one backup code\n", u.id, successes)
		}
	}
	return violations
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
