package aggregator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/types"
	log "github.com/sirupsen/logrus"
)

type Aggregator struct {
	config        config.AggregatorConfig
	maxCandidates int
	metrics       *metrics.Collector
	client        *http.Client
}

type SourceStats struct {
	URL             string `json:"url"`
	CandidatesFound int    `json:"candidates_found"`
	Error           string `json:"error,omitempty"`
}

func NewAggregator(cfg config.AggregatorConfig, maxCandidates int, metricsCollector *metrics.Collector) *Aggregator {
	return &Aggregator{
		config:        cfg,
		maxCandidates: maxCandidates,
		metrics:       metricsCollector,
		client: &http.Client{
			Timeout: config.Millis(cfg.TimeoutMs),
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchCandidates pulls every enabled source concurrently and returns the
// de-duplicated, shuffled and capped union. A failing source is logged and
// skipped; only a config without enabled sources is an error.
func (a *Aggregator) FetchCandidates(ctx context.Context) ([]types.Candidate, error) {
	candidates, _, err := a.Aggregate(ctx)
	return candidates, err
}

// Aggregate is FetchCandidates plus per-source statistics.
func (a *Aggregator) Aggregate(ctx context.Context) ([]types.Candidate, map[string]SourceStats, error) {
	enabledSources := make([]config.Source, 0, len(a.config.Sources))
	for _, source := range a.config.Sources {
		if source.Enabled {
			enabledSources = append(enabledSources, source)
		}
	}

	if len(enabledSources) == 0 {
		return nil, nil, fmt.Errorf("no enabled sources")
	}

	log.Infof("Fetching candidates from %d sources", len(enabledSources))

	var wg sync.WaitGroup
	resultChan := make(chan []types.Candidate, len(enabledSources))
	statsChan := make(chan SourceStats, len(enabledSources))

	for _, source := range enabledSources {
		wg.Add(1)
		go func(src config.Source) {
			defer wg.Done()

			startTime := time.Now()
			candidates, err := a.fetchSource(ctx, src)
			duration := time.Since(startTime)

			stat := SourceStats{
				URL:             src.URL,
				CandidatesFound: len(candidates),
			}

			if err != nil {
				stat.Error = err.Error()
				log.Warnf("Source %s failed: %v (took %v)", src.URL, err, duration)
				a.metrics.RecordSourceFailure(src.URL)
			} else {
				log.Debugf("Source %s returned %d candidates (took %v)", src.URL, len(candidates), duration)
			}

			a.metrics.RecordCandidatesFetched(src.URL, len(candidates))

			resultChan <- candidates
			statsChan <- stat
		}(source)
	}

	wg.Wait()
	close(resultChan)
	close(statsChan)

	all := make([]types.Candidate, 0)
	for candidates := range resultChan {
		all = append(all, candidates...)
	}

	sourceStats := make(map[string]SourceStats, len(enabledSources))
	for stat := range statsChan {
		sourceStats[stat.URL] = stat
	}

	unique := deduplicateCandidates(all)
	rand.Shuffle(len(unique), func(i, j int) { unique[i], unique[j] = unique[j], unique[i] })
	if a.maxCandidates > 0 && len(unique) > a.maxCandidates {
		unique = unique[:a.maxCandidates]
	}

	log.Infof("Candidates: %d fetched, %d unique kept", len(all), len(unique))

	return unique, sourceStats, nil
}

func (a *Aggregator) fetchSource(ctx context.Context, source config.Source) ([]types.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if a.config.UserAgent != "" {
		req.Header.Set("User-Agent", a.config.UserAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Limit body read to 10MB
	limitedReader := io.LimitReader(resp.Body, 10*1024*1024)

	protocol := source.Protocol
	if protocol == "" {
		protocol = "http"
	}

	return parseCandidates(limitedReader, protocol, source.URL)
}

// parseCandidates keeps every trimmed, non-empty line containing a colon.
// An explicit scheme prefix overrides the source's protocol.
func parseCandidates(r io.Reader, defaultProtocol, source string) ([]types.Candidate, error) {
	candidates := make([]types.Candidate, 0)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, ":") {
			continue
		}

		protocol := defaultProtocol
		if scheme, rest, ok := strings.Cut(line, "://"); ok {
			switch strings.ToLower(scheme) {
			case "socks5", "socks5h":
				protocol = "socks5"
			case "http", "https":
				protocol = "http"
			default:
				continue
			}
			line = rest
		}

		candidates = append(candidates, types.Candidate{
			Address:  line,
			Protocol: protocol,
			Source:   source,
		})
	}

	if err := scanner.Err(); err != nil {
		return candidates, fmt.Errorf("scan: %w", err)
	}

	return candidates, nil
}

func deduplicateCandidates(candidates []types.Candidate) []types.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]types.Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := fmt.Sprintf("%s|%s", strings.ToLower(c.Address), c.Protocol)
		if _, exists := seen[key]; !exists {
			seen[key] = struct{}{}
			unique = append(unique, c)
		}
	}

	return unique
}
