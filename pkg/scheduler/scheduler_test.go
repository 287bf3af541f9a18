package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobOnSchedule(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64
	require.NoError(t, s.AddJob("tick", "* * * * *", func(context.Context) {
		runs.Add(1)
	}))

	// Cron's finest granularity is a minute; trigger manually through
	// the entry to keep the test fast.
	s.mu.Lock()
	entry := s.cron.Entry(s.entries["tick"])
	s.mu.Unlock()
	entry.WrappedJob.Run()

	assert.EqualValues(t, 1, runs.Load())
}

func TestScheduler_RejectsDuplicateNamesAndBadSpecs(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddJob("tick", "*/30 * * * *", func(context.Context) {}))
	assert.Error(t, s.AddJob("tick", "*/30 * * * *", func(context.Context) {}))
	assert.Error(t, s.AddJob("bad", "not a cron spec", func(context.Context) {}))
	assert.ElementsMatch(t, []string{"tick"}, s.JobNames())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64
	block := make(chan struct{})
	require.NoError(t, s.AddJob("slow", "* * * * *", func(context.Context) {
		runs.Add(1)
		<-block
	}))

	s.mu.Lock()
	entry := s.cron.Entry(s.entries["slow"])
	s.mu.Unlock()

	go entry.WrappedJob.Run()
	require.Eventually(t, func() bool { return runs.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// A second trigger while the first is running is skipped.
	entry.WrappedJob.Run()
	assert.EqualValues(t, 1, runs.Load())
	close(block)
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := New(nil)
	cancelled := make(chan struct{})
	require.NoError(t, s.AddJob("waiter", "* * * * *", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	s.mu.Lock()
	entry := s.cron.Entry(s.entries["waiter"])
	s.mu.Unlock()
	go entry.WrappedJob.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled on Stop")
	}
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddJob("tick", "* * * * *", func(context.Context) {}))
	s.RemoveJob("tick")
	assert.Empty(t, s.JobNames())

	// Re-adding under the same name works after removal.
	require.NoError(t, s.AddJob("tick", "* * * * *", func(context.Context) {}))
}
