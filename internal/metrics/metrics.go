package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Candidate sourcing
	candidatesFetched *prometheus.CounterVec
	sourceFailures    *prometheus.CounterVec

	// Validation
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram

	// Pool
	validatedProxies     prometheus.Gauge
	rawCandidates        prometheus.Gauge
	proxiesServed        *prometheus.CounterVec
	replenishDuration    prometheus.Histogram
	replenishmentsActive prometheus.Gauge

	// Scraping
	scrapeAttempts *prometheus.CounterVec
	venueResults   *prometheus.CounterVec
	scrapeDuration prometheus.Histogram

	// API
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewCollector registers every metric with the default registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWith registers against reg, which lets tests use a private
// registry per collector.
func NewCollectorWith(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		candidatesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_fetched_total",
				Help:      "Total number of proxy candidates fetched from list sources",
			},
			[]string{"source"},
		),
		sourceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_failures_total",
				Help:      "Total number of failed proxy list fetches",
			},
			[]string{"source"},
		),
		validationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of proxy validation probes",
			},
			[]string{"result"},
		),
		validationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Proxy validation probe duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 4, 5, 10},
			},
		),
		validatedProxies: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "validated_proxies",
				Help:      "Current number of validated proxies waiting in the pool",
			},
		),
		rawCandidates: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "raw_candidates",
				Help:      "Current number of unvalidated candidates in the pool",
			},
		),
		proxiesServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxies_served_total",
				Help:      "Total number of pool requests by outcome",
			},
			[]string{"result"},
		),
		replenishDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "replenish_duration_seconds",
				Help:      "Duration of pool replenishment sweeps in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		replenishmentsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "replenishment_active",
				Help:      "1 while a replenishment sweep is running",
			},
		),
		scrapeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrape_attempts_total",
				Help:      "Total number of venue page attempts by outcome",
			},
			[]string{"outcome"},
		),
		venueResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "venue_results_total",
				Help:      "Total number of classified venue results",
			},
			[]string{"area", "outcome"},
		),
		scrapeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Time to resolve one venue, retries included",
				Buckets:   []float64{5, 10, 15, 20, 30, 45, 60, 90, 120, 180},
			},
		),
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return c
}

func (c *Collector) RecordCandidatesFetched(source string, count int) {
	c.candidatesFetched.WithLabelValues(source).Add(float64(count))
}

func (c *Collector) RecordSourceFailure(source string) {
	c.sourceFailures.WithLabelValues(source).Inc()
}

func (c *Collector) RecordValidation(alive bool, seconds float64) {
	if alive {
		c.validationsTotal.WithLabelValues("success").Inc()
	} else {
		c.validationsTotal.WithLabelValues("failure").Inc()
	}
	c.validationDuration.Observe(seconds)
}

func (c *Collector) SetPoolSizes(raw, validated int) {
	c.rawCandidates.Set(float64(raw))
	c.validatedProxies.Set(float64(validated))
}

func (c *Collector) RecordProxyServed(found bool) {
	if found {
		c.proxiesServed.WithLabelValues("proxy").Inc()
	} else {
		c.proxiesServed.WithLabelValues("none").Inc()
	}
}

func (c *Collector) RecordReplenish(seconds float64) {
	c.replenishDuration.Observe(seconds)
}

func (c *Collector) SetReplenishing(active bool) {
	if active {
		c.replenishmentsActive.Set(1)
	} else {
		c.replenishmentsActive.Set(0)
	}
}

func (c *Collector) RecordScrapeAttempt(outcome string) {
	c.scrapeAttempts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordVenueResult(area, outcome string, seconds float64) {
	c.venueResults.WithLabelValues(area, outcome).Inc()
	c.scrapeDuration.Observe(seconds)
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
