package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/busyness-collector/internal/browser"
	"github.com/busyness-collector/internal/busyness"
	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/types"
	log "github.com/sirupsen/logrus"
)

var errRateLimited = errors.New("rate limited")

// ProxySource hands out proxies for single use.
type ProxySource interface {
	Get(ctx context.Context) (types.Proxy, bool)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Orchestrator struct {
	config     config.ScraperConfig
	browserCfg config.BrowserConfig
	proxies    ProxySource
	browser    browser.Browser
	metrics    *metrics.Collector
	sleep      SleepFunc
}

func NewOrchestrator(cfg config.ScraperConfig, browserCfg config.BrowserConfig, proxies ProxySource, b browser.Browser, metricsCollector *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		config:     cfg,
		browserCfg: browserCfg,
		proxies:    proxies,
		browser:    b,
		metrics:    metricsCollector,
		sleep:      sleepContext,
	}
}

// Run scrapes venues in contiguous batches of at most BatchWidth. Members
// of a batch run concurrently; batches run one after another with a random
// pause in between. Results are returned in input order.
func (o *Orchestrator) Run(ctx context.Context, venues []types.Venue) []types.Result {
	results := make([]types.Result, len(venues))
	batches := Batches(len(venues), o.config.BatchWidth)

	for i, batch := range batches {
		log.WithFields(log.Fields{
			"batch": i + 1,
			"of":    len(batches),
			"size":  batch.End - batch.Start,
		}).Info("Starting batch")

		var wg sync.WaitGroup
		for idx := batch.Start; idx < batch.End; idx++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = o.ScrapeVenue(ctx, venues[idx])
			}(idx)
		}
		wg.Wait()

		if i < len(batches)-1 {
			delay := randomBetween(o.config.InterBatchDelayMinMs, o.config.InterBatchDelayMaxMs)
			log.Debugf("Sleeping %v before next batch", delay)
			if err := o.sleep(ctx, delay); err != nil {
				log.Warnf("Inter-batch wait interrupted: %v", err)
			}
		}
	}

	return results
}

// Batch is a half-open index range [Start, End) into the venue list.
type Batch struct {
	Start int
	End   int
}

// Batches partitions n items into ceil(n/width) contiguous ranges.
func Batches(n, width int) []Batch {
	if width < 1 {
		width = 1
	}
	batches := make([]Batch, 0, (n+width-1)/width)
	for start := 0; start < n; start += width {
		end := start + width
		if end > n {
			end = n
		}
		batches = append(batches, Batch{Start: start, End: end})
	}
	return batches
}

// ScrapeVenue runs up to Retries+1 attempts. Rate limiting, timeouts and
// other faults consume the budget; a page without busyness data ends the
// venue at once with NoData.
func (o *Orchestrator) ScrapeVenue(ctx context.Context, venue types.Venue) types.Result {
	startTime := time.Now()
	result := o.scrapeWithRetries(ctx, venue)

	o.metrics.RecordVenueResult(venue.Area, result.Outcome().String(), time.Since(startTime).Seconds())
	log.WithFields(log.Fields{
		"venue":    venue.ID,
		"outcome":  result.Outcome().String(),
		"duration": time.Since(startTime).Milliseconds(),
	}).Info("Venue resolved")

	return result
}

func (o *Orchestrator) scrapeWithRetries(ctx context.Context, venue types.Venue) types.Result {
	attempts := o.config.Retries + 1
	backoff := config.Millis(o.config.RateLimitBackoffMs)

	for attempt := 1; attempt <= attempts; attempt++ {
		var proxy *types.Proxy
		if p, ok := o.proxies.Get(ctx); ok {
			proxy = &p
		}

		logger := log.WithFields(log.Fields{
			"venue":   venue.ID,
			"attempt": attempt,
			"proxy":   proxyLabel(proxy),
		})

		result, err := o.attempt(ctx, venue, proxy)
		if err == nil {
			o.metrics.RecordScrapeAttempt(result.Outcome().String())
			return result
		}

		final := attempt == attempts || ctx.Err() != nil

		switch {
		case errors.Is(err, errRateLimited):
			o.metrics.RecordScrapeAttempt("rate_limited")
			if final {
				return types.Failure("rate limited after retries")
			}
			logger.Warnf("Rate limited (429), retrying in %v", backoff)
			if err := o.sleep(ctx, backoff); err != nil {
				return types.Failure(fmt.Sprintf("error: %v", err))
			}

		case isTimeout(err):
			o.metrics.RecordScrapeAttempt("timeout")
			logger.Warnf("Timeout: %v", err)
			if final {
				return types.Failure(fmt.Sprintf("timeout: %v", err))
			}

		default:
			o.metrics.RecordScrapeAttempt("error")
			logger.Warnf("Attempt failed: %v", err)
			if final {
				return types.Failure(fmt.Sprintf("error: %v", err))
			}
		}
	}

	return types.Failure("max retries exceeded")
}

// attempt opens one session and walks the page. A nil error always comes
// with a Success or NoData result.
func (o *Orchestrator) attempt(ctx context.Context, venue types.Venue, proxy *types.Proxy) (types.Result, error) {
	session, err := o.browser.Open(ctx, browser.Options{
		UserAgent:         pickUserAgent(o.browserCfg.UserAgents),
		Proxy:             proxy,
		ViewportWidth:     o.browserCfg.ViewportWidth,
		ViewportHeight:    o.browserCfg.ViewportHeight,
		NavigationTimeout: config.Millis(o.browserCfg.NavigationTimeoutMs),
		PageTimeout:       config.Millis(o.browserCfg.PageTimeoutMs),
	})
	if err != nil {
		return types.Result{}, err
	}
	defer session.Close()

	if err := o.sleep(ctx, randomBetween(o.config.PreNavDelayMinMs, o.config.PreNavDelayMaxMs)); err != nil {
		return types.Result{}, err
	}

	status, err := session.Navigate(venue.URL)
	if err != nil {
		return types.Result{}, err
	}
	if status == http.StatusTooManyRequests {
		return types.Result{}, errRateLimited
	}

	if err := o.sleep(ctx, randomBetween(o.config.DwellMinMs, o.config.DwellMaxMs)); err != nil {
		return types.Result{}, err
	}

	if err := session.Scroll(); err != nil {
		log.WithField("venue", venue.ID).Debugf("Scroll failed: %v", err)
	}

	labels, err := session.Labels("busy")
	if err != nil {
		return types.Result{}, err
	}

	if label, ok := SelectLabel(labels); ok {
		live, typical := busyness.Parse(label)
		return types.Success(live, typical, label), nil
	}

	content, err := session.Content()
	if err != nil {
		return types.Result{}, err
	}

	if raw, live, ok := FindBusyText(content); ok {
		return types.Success(types.IntPtr(live), nil, raw), nil
	}

	return types.NoData(), nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func proxyLabel(p *types.Proxy) string {
	if p == nil {
		return "direct"
	}
	return p.Address
}

func pickUserAgent(agents []string) string {
	if len(agents) == 0 {
		return ""
	}
	return agents[rand.Intn(len(agents))]
}

// randomBetween returns a uniformly random duration in [minMs, maxMs].
func randomBetween(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return config.Millis(minMs)
	}
	return config.Millis(minMs + rand.Intn(maxMs-minMs+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
