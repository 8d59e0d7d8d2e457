// Package runner executes collection passes over the venue list, one at a
// time, and publishes each finished run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/busyness-collector/internal/report"
	"github.com/busyness-collector/internal/snapshot"
	"github.com/busyness-collector/internal/types"
	"github.com/busyness-collector/internal/venues"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrAlreadyRunning = errors.New("a run is already in progress")

// Resolver classifies a group of venues; results are in input order.
type Resolver interface {
	Resolve(ctx context.Context, venues []types.Venue) []types.Result
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, venues []types.Venue) []types.Result

func (f ResolverFunc) Resolve(ctx context.Context, venues []types.Venue) []types.Result {
	return f(ctx, venues)
}

type Runner struct {
	venues    []types.Venue
	resolvers map[string]Resolver
	snapshot  *snapshot.Manager

	running    atomic.Bool
	looping    atomic.Bool
	trigger    chan struct{}
	now        func() time.Time
	onComplete func(*types.Run)
}

func New(list []types.Venue, resolvers map[string]Resolver, snap *snapshot.Manager) *Runner {
	return &Runner{
		venues:    list,
		resolvers: resolvers,
		snapshot:  snap,
		trigger:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// RunOnce resolves every venue through its source's resolver, builds the
// report and publishes the run. Groups for different sources run
// concurrently.
func (r *Runner) RunOnce(ctx context.Context) (*types.Run, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	id := uuid.NewString()
	started := r.now()
	log.WithFields(log.Fields{"run": id, "venues": len(r.venues)}).Info("Starting run")

	results := make([]types.Result, len(r.venues))
	var wg sync.WaitGroup

	for source, indices := range venues.Split(r.venues) {
		resolver, ok := r.resolvers[source]
		if !ok {
			log.Warnf("No resolver for source %q, skipping %d venues", source, len(indices))
			for _, idx := range indices {
				results[idx] = types.Failure(fmt.Sprintf("skipped: no resolver for source %q", source))
			}
			continue
		}

		group := make([]types.Venue, len(indices))
		for i, idx := range indices {
			group[i] = r.venues[idx]
		}

		wg.Add(1)
		go func(source string, indices []int, group []types.Venue) {
			defer wg.Done()
			out := resolver.Resolve(ctx, group)
			for i, idx := range indices {
				if i < len(out) {
					results[idx] = out[i]
				} else {
					results[idx] = types.Failure(fmt.Sprintf("error: %s resolver returned no result", source))
				}
			}
		}(source, indices, group)
	}
	wg.Wait()

	finished := r.now()
	rep := report.Build(r.venues, results, finished)
	run := &types.Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: finished,
		ExitCode:   report.ExitCode(rep),
		Report:     rep,
	}

	log.WithFields(log.Fields{
		"run":        id,
		"successful": rep.SuccessfulScrapes,
		"total":      rep.TotalLocations,
		"duration":   finished.Sub(started).Milliseconds(),
	}).Info("Run complete")

	if r.snapshot != nil {
		r.snapshot.Update(run)
	}
	if r.onComplete != nil {
		r.onComplete(run)
	}
	return run, nil
}

// OnComplete registers fn to be called with every finished run. It must be
// set before the first run starts.
func (r *Runner) OnComplete(fn func(*types.Run)) {
	r.onComplete = fn
}

// Trigger requests an extra run from Loop. It reports false when a request
// is already queued or no Loop is active to pick it up.
func (r *Runner) Trigger() bool {
	if !r.looping.Load() {
		return false
	}
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) Running() bool {
	return r.running.Load()
}

// Scheduled reports whether Loop is active.
func (r *Runner) Scheduled() bool {
	return r.looping.Load()
}

// Loop runs immediately, then on every tick and every Trigger, until ctx
// is done.
func (r *Runner) Loop(ctx context.Context, interval time.Duration) {
	r.looping.Store(true)
	defer r.looping.Store(false)

	r.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Run loop stopped")
			return
		case <-ticker.C:
			r.runLogged(ctx)
		case <-r.trigger:
			log.Info("Manual run triggered")
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		log.Warnf("Run skipped: %v", err)
	}
}
