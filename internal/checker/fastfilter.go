package checker

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/busyness-collector/internal/types"
	log "github.com/sirupsen/logrus"
)

// FastConnectFilter drops candidates that refuse a plain TCP connection,
// so the full probe only runs against listening ports.
func FastConnectFilter(ctx context.Context, candidates []types.Candidate, timeout time.Duration, concurrency int) []types.Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	if concurrency < 1 {
		concurrency = 1
	}

	startTime := time.Now()

	connectable := make([]bool, len(candidates))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, candidate := range candidates {
		sem <- struct{}{}
		wg.Add(1)

		go func(idx int, addr string) {
			defer wg.Done()
			defer func() { <-sem }()

			connectable[idx] = testTCPConnection(ctx, addr, timeout)
		}(i, candidate.Address)
	}

	wg.Wait()

	kept := make([]types.Candidate, 0, len(candidates))
	for i, ok := range connectable {
		if ok {
			kept = append(kept, candidates[i])
		}
	}

	log.Debugf("Fast filter: %d/%d connectable in %v", len(kept), len(candidates), time.Since(startTime))

	return kept
}

func testTCPConnection(ctx context.Context, address string, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
