package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"

	membership "github.com/MrEthical07/goMembership"
)

const seedPassword = "load-test-pw#1"

type loadConfig struct {
	Users         int    `env:"LOADTEST_USERS"          envDefault:"200"`
	Victims       int    `env:"LOADTEST_VICTIMS"        envDefault:"20"`
	Concurrency   int    `env:"LOADTEST_CONCURRENCY"    envDefault:"32"`
	Ops           int    `env:"LOADTEST_OPS"            envDefault:"2000"`
	MaxAttempts   int    `env:"LOADTEST_MAX_ATTEMPTS"   envDefault:"5"`
	ConnectionURL string `env:"MEMBERSHIP_CONNECTION_URL"`
	KeyPrefix     string `env:"MEMBERSHIP_KEY_PREFIX"   envDefault:"mbr-load"`
	Application   string `env:"MEMBERSHIP_APPLICATION"  envDefault:"loadtest"`
	Verbose       bool   `env:"LOADTEST_VERBOSE"        envDefault:"false"`
}

func main() {
	var cfg loadConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	flag.IntVar(&cfg.Users, "users", cfg.Users, "number of users to seed")
	flag.IntVar(&cfg.Victims, "victims", cfg.Victims, "users targeted by the lockout phase")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of concurrent workers")
	flag.IntVar(&cfg.Ops, "ops", cfg.Ops, "operations in the validate phase")
	flag.StringVar(&cfg.ConnectionURL, "url", cfg.ConnectionURL, "store connection url; in-memory when empty")
	flag.Parse()

	if cfg.Users <= 0 || cfg.Concurrency <= 0 || cfg.Ops <= 0 || cfg.MaxAttempts <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and max attempts must be > 0")
		os.Exit(2)
	}
	cfg.Victims = min(cfg.Victims, cfg.Users)

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	values := map[string]string{
		membership.KeyApplicationName:            cfg.Application,
		membership.KeyMaxInvalidPasswordAttempts: strconv.Itoa(cfg.MaxAttempts),
		membership.KeyPasswordAttemptWindow:      "10",
		membership.KeyKeyPrefix:                  cfg.KeyPrefix,
	}
	if cfg.ConnectionURL == "" {
		values[membership.KeyInMemory] = "true"
	} else {
		values[membership.KeyConnectionURL] = cfg.ConnectionURL
	}

	ctx := context.Background()
	engine, err := membership.New().
		WithConfigMap(values).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		BuildContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	usernames, err := seedUsers(ctx, engine, cfg.Users, cfg.Concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	victims := usernames[:cfg.Victims]
	healthy := usernames[cfg.Victims:]

	validateStats := runValidatePhase(ctx, engine, healthy, cfg.Ops, cfg.Concurrency)
	lockoutStats, locked := runLockoutPhase(ctx, engine, victims, cfg.MaxAttempts, cfg.Concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("lockout", lockoutStats)
	fmt.Printf("lockout accuracy: %d/%d victims locked\n", locked, len(victims))

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: validate_success=%d validate_failure=%d account_locked=%d store_errors=%d\n",
		snap.Counters[membership.MetricValidateSuccess],
		snap.Counters[membership.MetricValidateFailure],
		snap.Counters[membership.MetricAccountLocked],
		snap.Counters[membership.MetricStoreError],
	)

	if locked != len(victims) {
		os.Exit(1)
	}
}

func seedUsers(ctx context.Context, engine *membership.Engine, n, concurrency int) ([]string, error) {
	usernames := make([]string, n)
	for i := range usernames {
		usernames[i] = fmt.Sprintf("user-%06d", i)
	}

	fmt.Printf("seeding %d users...\n", n)
	start := time.Now()

	var (
		wg       sync.WaitGroup
		cursor   int64
		firstErr error
		errOnce  sync.Once
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				_, status, err := engine.CreateUser(ctx, membership.CreateUserRequest{
					Username:   usernames[i],
					Password:   seedPassword,
					Email:      usernames[i] + "@load.test",
					IsApproved: true,
				})
				if err == nil && status != membership.StatusSuccess {
					err = fmt.Errorf("create %s: %s", usernames[i], status)
				}
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return usernames, nil
}

func runValidatePhase(ctx context.Context, engine *membership.Engine, usernames []string, ops, concurrency int) phaseStats {
	if len(usernames) == 0 {
		return phaseStats{}
	}

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
				username := usernames[r.Intn(len(usernames))]
				t0 := time.Now()
				ok, err := engine.ValidateUser(ctx, username, seedPassword)
				d := time.Since(t0)
				if err != nil || !ok {
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

// runLockoutPhase sends exactly maxAttempts concurrent wrong passwords to every
// victim and reports how many ended up locked.
func runLockoutPhase(ctx context.Context, engine *membership.Engine, victims []string, maxAttempts, concurrency int) (phaseStats, int) {
	type attempt struct{ username string }

	jobs := make(chan attempt)
	var (
		wg        sync.WaitGroup
		failures  int64
		latencies = make([]time.Duration, 0, len(victims)*maxAttempts)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				t0 := time.Now()
				ok, err := engine.ValidateUser(ctx, job.username, "wrong-password")
				d := time.Since(t0)
				if err != nil || ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	for round := 0; round < maxAttempts; round++ {
		for _, v := range victims {
			jobs <- attempt{username: v}
		}
	}
	close(jobs)
	wg.Wait()
	stats := computeStats(time.Since(start), latencies, failures)

	locked := 0
	for _, v := range victims {
		user, err := engine.GetUser(ctx, v, false)
		if err == nil && user.IsLockedOut {
			locked++
		}
	}
	return stats, locked
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
	slices.Sort(samples)
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
