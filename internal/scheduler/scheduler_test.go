package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/domain"
	"github.com/usagelab/metering-loadgen/internal/ingest"
	"github.com/usagelab/metering-loadgen/internal/metrics"
)

// fakeSubmitter records submissions and tracks worker-pool occupancy
type fakeSubmitter struct {
	mu          sync.Mutex
	events      []*domain.Event
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	delay       time.Duration
	accept      func(event *domain.Event) bool
}

func (f *fakeSubmitter) Post(ctx context.Context, event *domain.Event) ingest.Result {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		max := f.maxInFlight.Load()
		if current <= max || f.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()

	accepted := f.accept == nil || f.accept(event)
	return ingest.Result{EventID: event.EventID, Accepted: accepted, Status: 202, Attempts: 1}
}

func (f *fakeSubmitter) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestScheduler(submitter Submitter, total, batchSize, workers int) *Scheduler {
	return New(submitter, Config{
		TotalEvents:    total,
		BatchSize:      batchSize,
		Workers:        workers,
		PacingInterval: time.Millisecond,
	}, zap.NewNop(), metrics.NewNop())
}

func TestScheduler_Run_BatchCountAndTotal(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		batchSize   int
		wantBatches int
	}{
		{"exact multiple", 300, 150, 2},
		{"trailing partial batch", 310, 150, 3},
		{"single short batch", 10, 150, 1},
		{"batch size one", 5, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &fakeSubmitter{}
			s := newTestScheduler(submitter, tt.total, tt.batchSize, 10)

			summary, err := s.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantBatches, summary.Batches)
			assert.Equal(t, tt.total, summary.Submitted)
			assert.Equal(t, tt.total, summary.Accepted)
			assert.Equal(t, tt.total, submitter.submitted())
		})
	}
}

func TestScheduler_Run_BoundedConcurrency(t *testing.T) {
	workers := 5
	submitter := &fakeSubmitter{delay: 2 * time.Millisecond}
	s := newTestScheduler(submitter, 100, 50, workers)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 100, summary.Accepted)
	assert.LessOrEqual(t, submitter.maxInFlight.Load(), int64(workers))
}

func TestScheduler_Run_PartialFailuresDoNotAbort(t *testing.T) {
	submitter := &fakeSubmitter{
		accept: func(event *domain.Event) bool {
			// Reject everything in the web half of each batch
			return event.Source != "web"
		},
	}
	s := newTestScheduler(submitter, 100, 25, 10)

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Batches)
	assert.Equal(t, 100, summary.Submitted)
	assert.Equal(t, 50, summary.Accepted)
	assert.Equal(t, 50, summary.Failed)
}

func TestScheduler_Run_Cancellation(t *testing.T) {
	submitter := &fakeSubmitter{delay: 5 * time.Millisecond}
	s := New(submitter, Config{
		TotalEvents:    10000,
		BatchSize:      100,
		Workers:        10,
		PacingInterval: 50 * time.Millisecond,
	}, zap.NewNop(), metrics.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	summary, err := s.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, summary.Submitted, 10000, "run must stop early on cancellation")
	assert.Equal(t, summary.Accepted+summary.Failed, summary.Submitted)
}

func TestScheduler_Run_AlreadyCancelled(t *testing.T) {
	submitter := &fakeSubmitter{}
	s := newTestScheduler(submitter, 100, 10, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Submitted)
}
