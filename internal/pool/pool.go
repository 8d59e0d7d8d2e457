// Package pool keeps a supply of validated forward proxies sourced from
// public lists.
//
// Candidates move through two queues: raw (fetched, never probed) and
// validated (passed one probe). Get pops validated proxies most recent
// first and schedules a background sweep when the validated queue drops
// below the low-water mark. At most one sweep runs at a time.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/busyness-collector/internal/checker"
	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/types"
	log "github.com/sirupsen/logrus"
)

// Fetcher supplies fresh raw candidates.
type Fetcher interface {
	FetchCandidates(ctx context.Context) ([]types.Candidate, error)
}

// Validator probes a single candidate.
type Validator interface {
	Validate(ctx context.Context, candidate types.Candidate) (types.Proxy, bool)
}

type Pool struct {
	config    config.PoolConfig
	fetcher   Fetcher
	validator Validator
	metrics   *metrics.Collector

	// getMu serializes Get for its whole duration, including a
	// synchronous replenish. mu guards the two queues and closed; the
	// closed check and wg.Add happen under it so Close never races an Add.
	getMu     sync.Mutex
	mu        sync.Mutex
	raw       []types.Candidate
	validated []types.Proxy
	lastFetch time.Time
	closed    bool

	replenishing atomic.Bool

	served         atomic.Int64
	exhausted      atomic.Int64
	validatedTotal atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Stats struct {
	RawCandidates    int       `json:"raw_candidates"`
	ValidatedProxies int       `json:"validated_proxies"`
	Replenishing     bool      `json:"replenishing"`
	Served           int64     `json:"served"`
	Exhausted        int64     `json:"exhausted"`
	ValidatedTotal   int64     `json:"validated_total"`
	LastFetch        time.Time `json:"last_fetch"`
}

func New(cfg config.PoolConfig, fetcher Fetcher, validator Validator, metricsCollector *metrics.Collector) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:    cfg,
		fetcher:   fetcher,
		validator: validator,
		metrics:   metricsCollector,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Get returns one validated proxy, or false when none could be found.
// An empty result is a normal outcome: callers proceed without a proxy.
func (p *Pool) Get(ctx context.Context) (types.Proxy, bool) {
	p.getMu.Lock()
	defer p.getMu.Unlock()

	if proxy, remaining, ok := p.pop(); ok {
		if remaining < p.config.LowWaterMark {
			p.replenishInBackground()
		}
		p.served.Add(1)
		p.metrics.RecordProxyServed(true)
		return proxy, true
	}

	p.Replenish(ctx, p.config.SyncTarget)

	if proxy, _, ok := p.pop(); ok {
		p.served.Add(1)
		p.metrics.RecordProxyServed(true)
		return proxy, true
	}

	p.exhausted.Add(1)
	p.metrics.RecordProxyServed(false)
	return types.Proxy{}, false
}

// Replenish validates raw candidates until the validated queue holds
// target entries or the raw queue runs dry. The raw queue is refilled from
// the fetcher only when it is empty on entry. If another sweep is already
// running the call returns 0 immediately and changes nothing.
func (p *Pool) Replenish(ctx context.Context, target int) int {
	if !p.replenishing.CompareAndSwap(false, true) {
		log.Debug("Replenishment already in flight, skipping")
		return 0
	}
	defer p.replenishing.Store(false)

	p.metrics.SetReplenishing(true)
	defer p.metrics.SetReplenishing(false)

	startTime := time.Now()

	if p.rawLen() == 0 {
		p.refill(ctx)
	}

	added := 0
	for ctx.Err() == nil {
		batch := p.nextBatch(target)
		if len(batch) == 0 {
			break
		}

		if p.config.EnableFastFilter {
			batch = checker.FastConnectFilter(ctx, batch,
				config.Millis(p.config.FastFilterTimeoutMs), p.config.FastFilterConcurrency)
		}

		found := p.validateBatch(ctx, batch)

		p.mu.Lock()
		p.validated = append(p.validated, found...)
		p.updateGauges()
		p.mu.Unlock()

		added += len(found)
		p.validatedTotal.Add(int64(len(found)))
	}

	duration := time.Since(startTime)
	p.metrics.RecordReplenish(duration.Seconds())

	stats := p.Stats()
	log.WithFields(log.Fields{
		"added":     added,
		"validated": stats.ValidatedProxies,
		"raw":       stats.RawCandidates,
		"target":    target,
		"duration":  duration.Milliseconds(),
	}).Info("Replenishment finished")

	return added
}

// Close cancels a running background sweep and waits for it to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Wait blocks until the current background sweep, if any, has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		RawCandidates:    len(p.raw),
		ValidatedProxies: len(p.validated),
		Replenishing:     p.replenishing.Load(),
		Served:           p.served.Load(),
		Exhausted:        p.exhausted.Load(),
		ValidatedTotal:   p.validatedTotal.Load(),
		LastFetch:        p.lastFetch,
	}
}

func (p *Pool) replenishInBackground() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.replenishing.Load() {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Replenish(p.ctx, p.config.TargetSize)
	}()
}

// pop removes the most recently validated proxy.
func (p *Pool) pop() (types.Proxy, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.validated)
	if n == 0 {
		return types.Proxy{}, 0, false
	}

	proxy := p.validated[n-1]
	p.validated = p.validated[:n-1]
	p.updateGauges()

	return proxy, n - 1, true
}

func (p *Pool) rawLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.raw)
}

func (p *Pool) refill(ctx context.Context) {
	candidates, err := p.fetcher.FetchCandidates(ctx)
	if err != nil {
		log.Warnf("Fetching proxy candidates failed: %v", err)
	}

	p.mu.Lock()
	p.raw = candidates
	p.lastFetch = time.Now()
	p.updateGauges()
	p.mu.Unlock()

	log.Infof("Raw candidate queue refilled with %d entries", len(candidates))
}

// nextBatch pops up to ValidationBatchSize raw candidates, or nothing when
// the target is met or the raw queue is empty.
func (p *Pool) nextBatch(target int) []types.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.validated) >= target || len(p.raw) == 0 {
		return nil
	}

	size := p.config.ValidationBatchSize
	if size > len(p.raw) {
		size = len(p.raw)
	}

	cut := len(p.raw) - size
	batch := make([]types.Candidate, size)
	copy(batch, p.raw[cut:])
	p.raw = p.raw[:cut]
	p.updateGauges()

	return batch
}

func (p *Pool) validateBatch(ctx context.Context, batch []types.Candidate) []types.Proxy {
	results := make([]types.Proxy, len(batch))
	alive := make([]bool, len(batch))

	var wg sync.WaitGroup
	for i, candidate := range batch {
		wg.Add(1)
		go func(idx int, c types.Candidate) {
			defer wg.Done()
			results[idx], alive[idx] = p.validator.Validate(ctx, c)
		}(i, candidate)
	}
	wg.Wait()

	found := make([]types.Proxy, 0, len(batch))
	for i, ok := range alive {
		if ok {
			found = append(found, results[i])
		}
	}
	return found
}

// updateGauges must be called with mu held.
func (p *Pool) updateGauges() {
	p.metrics.SetPoolSizes(len(p.raw), len(p.validated))
}
