// Command blogauth-loadtest measures login throughput and latency against a
// Redis-backed engine. It seeds verified accounts, then runs a phase of
// correct-password logins and a phase of wrong-password logins spread over
// many source IPs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/blogauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const seedPassword = "Loadtest-Password-1!"

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "logins per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "blogauth-lt", "redis key prefix")
		memoryKB    = flag.Uint("argon2-memory", 16*1024, "argon2id memory in KiB")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := blogauth.DefaultConfig()
	cfg.Password.Memory = uint32(*memoryKB)
	cfg.Redis.Prefix = *prefix
	cfg.Audit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true
	// the wrong-password phase would otherwise lock every seeded account
	cfg.Lockout.Threshold = *ops + 1

	var (
		inboxMu sync.Mutex
		inbox   = make(map[string]string, *accounts)
	)
	engine, err := blogauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMailer(blogauth.MailerFunc(func(_ context.Context, msg blogauth.Message) error {
			if msg.Kind == blogauth.MessageEmailVerification {
				inboxMu.Lock()
				inbox[msg.To] = msg.Token
				inboxMu.Unlock()
			}
			return nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	seedCtx := blogauth.WithClientIP(ctx, "10.255.0.1")
	for i := range emails {
		emails[i] = fmt.Sprintf("lt-%d-%d@example.com", startSeed.UnixNano(), i)
		if _, err := engine.Register(seedCtx, blogauth.RegisterRequest{
			Email:       emails[i],
			Password:    seedPassword,
			GDPRConsent: true,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		inboxMu.Lock()
		token := inbox[emails[i]]
		inboxMu.Unlock()
		if _, err := engine.VerifyEmail(seedCtx, token); err != nil {
			fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	successStats := runLoginPhase(ctx, engine, emails, seedPassword, *ops, *concurrency, 1)
	failureStats := runLoginPhase(ctx, engine, emails, "wrong-password", *ops, *concurrency, 2)

	fmt.Println("---- results ----")
	printStats("login-ok", successStats)
	printStats("login-bad", failureStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: login_success=%d invalid_credentials=%d rate_limited=%d\n",
		snap.Counters[blogauth.MetricLoginSuccess],
		snap.Counters[blogauth.MetricLoginInvalidCredentials],
		snap.Counters[blogauth.MetricLoginRateLimited],
	)
}

// runLoginPhase sends ops logins. Each op uses its own source IP so the
// per-IP window measures the limiter's read path, not rejections. An op
// counts as a failure when the outcome is not the one password implies.
func runLoginPhase(ctx context.Context, engine *blogauth.Engine, emails []string, password string, ops, concurrency, subnet int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)
	wantSuccess := password == seedPassword

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
				ipCtx := blogauth.WithClientIP(ctx, ipFor(subnet, i))
				email := emails[r.Intn(len(emails))]
				t0 := time.Now()
				out, err := engine.Login(ipCtx, blogauth.LoginRequest{Email: email, Password: password})
				d := time.Since(t0)
				_, ok := out.(blogauth.LoginSuccess)
				if err != nil || ok != wantSuccess {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func ipFor(subnet, i int) string {
	return "10." + strconv.Itoa(subnet) + "." + strconv.Itoa((i/250)%250) + "." + strconv.Itoa(i%250+1)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
