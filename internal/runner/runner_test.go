package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/busyness-collector/internal/snapshot"
	"github.com/busyness-collector/internal/storage"
	"github.com/busyness-collector/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(result types.Result) ResolverFunc {
	return func(_ context.Context, vs []types.Venue) []types.Result {
		out := make([]types.Result, len(vs))
		for i := range out {
			out[i] = result
		}
		return out
	}
}

func TestRunOnceMergesSourcesInInputOrder(t *testing.T) {
	list := []types.Venue{
		{ID: "s1", Name: "S1", Area: "Pentagon"},
		{ID: "p1", Name: "P1", Area: "Pentagon", Source: types.SourcePizzaWatch},
		{ID: "s2", Name: "S2", Area: "Control"},
		{ID: "b1", Name: "B1", Area: "Mar-a-Lago", Source: types.SourceBestTime},
	}
	resolvers := map[string]Resolver{
		types.SourceScrape:     fixed(types.Success(types.IntPtr(10), types.IntPtr(20), "Currently 10% busy, usually 20% busy.")),
		types.SourcePizzaWatch: fixed(types.NoData()),
	}

	snap := snapshot.NewManager(storage.NoopStorage{})
	r := New(list, resolvers, snap)
	var completed *types.Run
	r.OnComplete(func(run *types.Run) { completed = run })

	run, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	snap.Close()

	assert.Same(t, run, completed)
	assert.NotEmpty(t, run.ID)
	assert.Same(t, run, snap.Get())

	rep := run.Report
	require.Len(t, rep.Results, 4)
	assert.Equal(t, 4, rep.TotalLocations)
	assert.Equal(t, 2, rep.SuccessfulScrapes)

	ids := []string{}
	for _, rec := range rep.Results {
		ids = append(ids, rec.LocationID)
	}
	assert.Equal(t, []string{"s1", "p1", "s2", "b1"}, ids)

	assert.Equal(t, "success", rep.Results[0].Status)
	assert.Equal(t, "no_data", rep.Results[1].Status)
	assert.Equal(t, "success", rep.Results[2].Status)
	assert.Equal(t, "error", rep.Results[3].Status)
	assert.Contains(t, *rep.Results[3].Error, "no resolver")

	assert.Equal(t, 2, run.ExitCode)
}

func TestRunOnceRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := ResolverFunc(func(_ context.Context, vs []types.Venue) []types.Result {
		close(entered)
		<-release
		return make([]types.Result, len(vs))
	})

	r := New([]types.Venue{{ID: "a"}}, map[string]Resolver{types.SourceScrape: blocking}, nil)

	done := make(chan error)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()

	<-entered
	assert.True(t, r.Running())
	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	assert.NoError(t, <-done)
	assert.False(t, r.Running())
}

func TestTriggerQueuesAtMostOne(t *testing.T) {
	r := New(nil, nil, nil)
	r.looping.Store(true)
	assert.True(t, r.Trigger())
	assert.False(t, r.Trigger())
}

func TestTriggerRefusedWithoutLoop(t *testing.T) {
	r := New(nil, nil, nil)
	assert.False(t, r.Scheduled())
	assert.False(t, r.Trigger())
	assert.Empty(t, r.trigger)
}

func TestLoopRunsOnStartAndTrigger(t *testing.T) {
	var calls atomic.Int32
	counting := ResolverFunc(func(_ context.Context, vs []types.Venue) []types.Result {
		calls.Add(1)
		return make([]types.Result, len(vs))
	})
	r := New([]types.Venue{{ID: "a"}}, map[string]Resolver{types.SourceScrape: counting}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Loop(ctx, time.Hour)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.Scheduled())
	require.True(t, r.Trigger())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, r.Scheduled())
}
