// Package orchestrator implements the prefetch orchestrator (§4.3): it
// drives fast and slow provider tiers on independent timers and writes
// returned quotes into the edge cache.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/plm/liquidity-mesh-router/routing/cache"
	"github.com/plm/liquidity-mesh-router/routing/providers"
	"github.com/plm/liquidity-mesh-router/routing/workerpool"
	redisstore "github.com/plm/liquidity-mesh-router/storage/redis"
)

// Config configures the orchestrator's tier periods.
type Config struct {
	FastPeriod time.Duration
	SlowPeriod time.Duration
}

// DefaultConfig returns the periods chosen for the ambiguous-cron open
// question in §9: fast ~30s, slow 60s, both plain tickers.
func DefaultConfig() *Config {
	return &Config{
		FastPeriod: 30 * time.Second,
		SlowPeriod: 60 * time.Second,
	}
}

// Orchestrator periodically invokes quote providers and writes their
// snapshots into the edge cache.
type Orchestrator struct {
	cache   *cache.EdgeCache
	fast    []providers.QuoteProvider
	slow    []providers.QuoteProvider
	cfg     *Config
	pool    *workerpool.Pool
	breaker *redisstore.CircuitBreaker
}

// New builds an orchestrator over the given providers, splitting them into
// fast/slow tiers by each provider's Fast() flag. Fan-out within a tier is
// bounded by a shared worker pool so a provider storm cannot explode
// goroutine count. breaker is optional: a nil breaker disables per-venue
// circuit breaking and every fetch is attempted directly.
func New(c *cache.EdgeCache, all []providers.QuoteProvider, cfg *Config, breaker *redisstore.CircuitBreaker) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := &Orchestrator{cache: c, cfg: cfg, pool: workerpool.New(&workerpool.Config{MaxWorkers: 16}), breaker: breaker}
	for _, p := range all {
		if p.Fast() {
			o.fast = append(o.fast, p)
		} else {
			o.slow = append(o.slow, p)
		}
	}
	return o
}

// Start runs both tiers until ctx is cancelled. HTTP (slow-tier) providers
// get a single eager fetch before the first ticker fires so the cache is
// warm before the first router request, per §4.3.
func (o *Orchestrator) Start(ctx context.Context) {
	log.Printf("🔄 prefetch orchestrator: starting, fast=%d slow=%d providers", len(o.fast), len(o.slow))

	o.runTier(ctx, o.slow)
	o.runTier(ctx, o.fast)

	fastTicker := time.NewTicker(o.cfg.FastPeriod)
	slowTicker := time.NewTicker(o.cfg.SlowPeriod)
	defer fastTicker.Stop()
	defer slowTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.pool.Stop()
			log.Println("🔄 prefetch orchestrator: stopped")
			return
		case <-fastTicker.C:
			o.runTier(ctx, o.fast)
		case <-slowTicker.C:
			o.runTier(ctx, o.slow)
		}
	}
}

// PoolStats reports the orchestrator's worker pool counters, for admin
// inspection.
func (o *Orchestrator) PoolStats() workerpool.Stats {
	return o.pool.Stats()
}

// runTier invokes every provider in the tier concurrently, and blocks until
// all have returned before the caller starts the next cycle — the
// orchestrator does not cancel in-flight calls at a period boundary (§5).
// Failures are logged per provider and do not cancel siblings (§4.3, §7).
func (o *Orchestrator) runTier(ctx context.Context, tier []providers.QuoteProvider) {
	var wg sync.WaitGroup
	for _, p := range tier {
		p := p
		wg.Add(1)
		o.pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()

			cbCfg := redisstore.DefaultCircuitBreakerConfig(p.VenueID())
			if o.breaker != nil {
				if err := o.breaker.Allow(ctx, cbCfg); err != nil {
					log.Printf("⛔ provider %s: circuit open, skipping fetch: %v", p.VenueID(), err)
					return err
				}
			}

			quotes, err := p.FetchQuotes(ctx)
			if err != nil {
				log.Printf("❌ provider %s fetch failed: %v", p.VenueID(), err)
				if o.breaker != nil {
					o.breaker.RecordFailure(ctx, cbCfg)
				}
				return err
			}
			if o.breaker != nil {
				o.breaker.RecordSuccess(ctx, cbCfg)
			}
			if len(quotes) == 0 {
				return nil
			}
			if err := o.cache.PutQuoteBatch(ctx, quotes); err != nil {
				log.Printf("❌ provider %s: failed to write %d quotes to cache: %v", p.VenueID(), len(quotes), err)
				return err
			}
			log.Printf("✅ provider %s: wrote %d quotes", p.VenueID(), len(quotes))
			return nil
		})
	}
	wg.Wait()
}
