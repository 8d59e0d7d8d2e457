package checker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProxy answers every forwarded request with status and counts how
// many requests were routed through it.
func fakeProxy(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !r.URL.IsAbs() {
			t.Errorf("expected absolute request URI through proxy, got %q", r.URL.String())
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestChecker(timeoutMs int) *Checker {
	cfg := config.CheckerConfig{TimeoutMs: timeoutMs, TestURL: "http://probe.example.test/"}
	return NewChecker(cfg, metrics.NewCollectorWith("test", prometheus.NewRegistry()))
}

func candidateFor(srv *httptest.Server) types.Candidate {
	return types.Candidate{Address: strings.TrimPrefix(srv.URL, "http://"), Protocol: "http", Source: "test"}
}

func TestValidateAcceptsExactly200(t *testing.T) {
	srv, hits := fakeProxy(t, http.StatusOK)
	chk := newTestChecker(2000)

	p, ok := chk.Validate(context.Background(), candidateFor(srv))
	require.True(t, ok)
	assert.Equal(t, candidateFor(srv).Address, p.Address)
	assert.Equal(t, "http", p.Protocol)
	assert.Equal(t, int32(1), hits.Load())
}

func TestValidateRejectsOtherStatuses(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusFound, http.StatusForbidden, http.StatusBadGateway} {
		srv, _ := fakeProxy(t, status)
		chk := newTestChecker(2000)

		result := chk.Check(context.Background(), candidateFor(srv))
		assert.False(t, result.Alive, "status %d", status)
		assert.NotEmpty(t, result.Error)
	}
}

func TestValidateRejectsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	chk := newTestChecker(500)
	_, ok := chk.Validate(context.Background(), types.Candidate{Address: addr, Protocol: "http"})
	assert.False(t, ok)
}

func TestValidateTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	chk := newTestChecker(200)
	start := time.Now()
	_, ok := chk.Validate(context.Background(), candidateFor(srv))
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestFastConnectFilter(t *testing.T) {
	live, _ := fakeProxy(t, http.StatusOK)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	require.NoError(t, ln.Close())

	in := []types.Candidate{
		{Address: dead, Protocol: "http"},
		candidateFor(live),
	}

	kept := FastConnectFilter(context.Background(), in, 500*time.Millisecond, 4)
	require.Len(t, kept, 1)
	assert.Equal(t, candidateFor(live).Address, kept[0].Address)
}
