package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/types"
	log "github.com/sirupsen/logrus"
)

type Checker struct {
	config  config.CheckerConfig
	metrics *metrics.Collector
	timeout time.Duration
}

type CheckResult struct {
	Candidate types.Candidate
	Alive     bool
	LatencyMs int64
	Error     string
}

func NewChecker(cfg config.CheckerConfig, metricsCollector *metrics.Collector) *Checker {
	return &Checker{
		config:  cfg,
		metrics: metricsCollector,
		timeout: config.Millis(cfg.TimeoutMs),
	}
}

// Validate probes the candidate once and converts a live one into a
// usable proxy.
func (c *Checker) Validate(ctx context.Context, candidate types.Candidate) (types.Proxy, bool) {
	result := c.Check(ctx, candidate)
	if !result.Alive {
		log.Debugf("Candidate %s rejected: %s", candidate.Address, result.Error)
		return types.Proxy{}, false
	}
	return types.Proxy{Address: candidate.Address, Protocol: candidate.Protocol}, true
}

// Check issues one GET to the probe URL through the candidate. Only an
// exact 200 counts; connect errors, timeouts and other statuses are all
// the same failure.
func (c *Checker) Check(ctx context.Context, candidate types.Candidate) CheckResult {
	startTime := time.Now()

	transport, err := c.transportFor(candidate)
	if err != nil {
		return c.record(candidate, startTime, err)
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.TestURL, nil)
	if err != nil {
		return c.record(candidate, startTime, fmt.Errorf("create request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return c.record(candidate, startTime, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return c.record(candidate, startTime, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	return c.record(candidate, startTime, nil)
}

func (c *Checker) record(candidate types.Candidate, startTime time.Time, err error) CheckResult {
	latency := time.Since(startTime)
	c.metrics.RecordValidation(err == nil, latency.Seconds())

	if err != nil {
		return CheckResult{
			Candidate: candidate,
			Alive:     false,
			Error:     err.Error(),
		}
	}
	return CheckResult{
		Candidate: candidate,
		Alive:     true,
		LatencyMs: latency.Milliseconds(),
	}
}

func (c *Checker) transportFor(candidate types.Candidate) (*http.Transport, error) {
	transport := &http.Transport{
		ForceAttemptHTTP2:   false,
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: c.timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // reachability only, content is never inspected
		},
	}

	if candidate.Protocol == "socks5" {
		dialContext, err := socks5DialContext(candidate.Address, c.timeout)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dialContext
		return transport, nil
	}

	proxyURL, err := url.Parse(fmt.Sprintf("http://%s", candidate.Address))
	if err != nil {
		return nil, fmt.Errorf("parse proxy URL: %w", err)
	}
	transport.Proxy = http.ProxyURL(proxyURL)
	transport.DialContext = (&net.Dialer{
		Timeout:   c.timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return transport, nil
}
