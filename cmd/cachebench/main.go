// Command cachebench runs a get-or-compute workload against a flaky upstream
// and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/resilientcache/cache"
	"github.com/IvanBrykalov/resilientcache/codec"
	pmet "github.com/IvanBrykalov/resilientcache/metrics/prom"
	"github.com/IvanBrykalov/resilientcache/policy/twoq"
	"github.com/IvanBrykalov/resilientcache/secondary/redisstore"
)

var errUpstream = errors.New("upstream unavailable")

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 100_000, "cache capacity (entries, 0 = unbounded)")
		shards   = flag.Int("shards", 0, "number of shards (0=auto)")
		policy   = flag.String("policy", "lru", "eviction policy: lru | 2q")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 95, "GetOrCompute percentage [0..100]; the rest are Set/RemoveByTag")

		keys  = flag.Int("keys", 100_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		ttl       = flag.Duration("ttl", 2*time.Second, "entry duration")
		jitter    = flag.Duration("jitter", 500*time.Millisecond, "jitter span")
		eager     = flag.Float64("eager", 0.8, "eager refresh fraction (0 = off)")
		timeout   = flag.Duration("timeout", 50*time.Millisecond, "compute timeout (0 = none)")
		latency   = flag.Duration("latency", 2*time.Millisecond, "upstream latency")
		failRate  = flag.Int("fail", 10, "upstream failure percentage [0..100]")
		throttle  = flag.Duration("throttle", time.Second, "fail-safe throttle duration")
		redisAddr = flag.String("redis", "", "Redis address for the secondary tier; empty = disabled")
		verbose   = flag.Bool("v", false, "debug logging")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "resilientcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	opt := cache.Options[string]{
		Capacity:      *capacity,
		Shards:        *shards,
		SweepInterval: *ttl,
		Metrics:       metrics,
		Logger:        logger,
		DefaultEntryOptions: &cache.EntryOptions{
			Duration:                 *ttl,
			Jitter:                   *jitter,
			EagerRefreshFraction:     *eager,
			FailSafe:                 true,
			FailSafeMaxDuration:      10 * *ttl,
			FailSafeThrottleDuration: *throttle,
			Timeout:                  *timeout,
		},
	}
	switch *policy {
	case "lru":
		// nil => LRU by default
	case "2q":
		// IMPORTANT: 2Q queues are sized per shard.
		sh := *shards
		if sh <= 0 {
			sh = 2 * runtime.GOMAXPROCS(0)
		}
		perShard := max(*capacity/sh, 4)
		opt.Policy = twoq.New(perShard/4, perShard/2)
	default:
		log.Fatalf("unknown policy: %q (use lru or 2q)", *policy)
	}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer func() { _ = rdb.Close() }()
		store := redisstore.New(rdb, "cachebench:")
		if err := store.Ping(context.Background()); err != nil {
			log.Fatalf("redis: %v", err)
		}
		opt.Secondary = store
		opt.Codec = codec.Msgpack[string]{}
	}
	c := cache.New(opt)
	defer func() { _ = c.Close() }()

	// ---- Upstream ----
	var computes, failures atomic.Uint64
	failPct := *failRate
	lat := *latency
	upstream := func(ctx context.Context, cc *cache.ComputeContext[string]) (string, error) {
		n := computes.Add(1)
		select {
		case <-time.After(lat):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if int(n%100) < failPct {
			failures.Add(1)
			return "", errUpstream
		}
		return "v:" + cc.Key + ":" + strconv.FormatUint(n, 10), nil
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, stale, errs, writes, invalidated, total atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for ctx.Err() == nil {
				n := localZipf.Uint64()
				k := "k:" + strconv.FormatUint(n, 10)
				tag := "g" + strconv.FormatUint(n%16, 10)

				total.Add(1)
				switch p := int(localR.Int31n(100)); {
				case p < readPctVal:
					reads.Add(1)
					r, err := c.GetOrComputeResult(ctx, k, upstream, 0, cache.WithTags(tag))
					switch {
					case err != nil:
						errs.Add(1)
					case r.Stale:
						stale.Add(1)
					}
				case p == 99:
					invalidated.Add(uint64(c.RemoveByTag(ctx, tag)))
				default:
					writes.Add(1)
					c.Set(ctx, k, "w"+strconv.Itoa(localR.Int()), 0, cache.WithTags(tag))
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	st := c.Stats()
	ops := total.Load()
	fmt.Printf("policy=%s cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d redis=%q\n",
		*policy, *capacity, *shards, workersN, *keys, elapsed, seedBase, *redisAddr)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  invalidated=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads.Load(), writes.Load(), invalidated.Load())
	fmt.Printf("hits=%d  misses=%d  stale-hits=%d  hit-rate=%.2f%%\n",
		st.Hits, st.Misses, st.StaleHits, st.HitRate()*100)
	fmt.Printf("computes=%d  upstream-failures=%d  served-stale=%d  errors=%d\n",
		computes.Load(), failures.Load(), stale.Load(), errs.Load())
	fmt.Printf("Len()=%d  evictions=%d\n", c.Len(), st.Evictions)
}
