package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/metrics"
	"github.com/usagelab/metering-loadgen/internal/repository"
)

// MockAnalytics is a mock implementation of repository.Analytics
type MockAnalytics struct {
	mock.Mock
}

func (m *MockAnalytics) UsageTotals(ctx context.Context, eventName string) (*repository.UsageTotals, error) {
	args := m.Called(ctx, eventName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.UsageTotals), args.Error(1)
}

func (m *MockAnalytics) IngestionLag(ctx context.Context, window time.Duration) ([]repository.LagBucket, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.LagBucket), args.Error(1)
}

func (m *MockAnalytics) GroupedUsage(ctx context.Context) ([]repository.GroupedUsage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.GroupedUsage), args.Error(1)
}

func (m *MockAnalytics) EventCount(ctx context.Context, eventName string) (uint64, error) {
	args := m.Called(ctx, eventName)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockAnalytics) DurationStats(ctx context.Context, eventName string) (*repository.DurationStats, error) {
	args := m.Called(ctx, eventName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.DurationStats), args.Error(1)
}

func (m *MockAnalytics) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAnalytics) Close() error {
	args := m.Called()
	return args.Error(0)
}

func healthyExpectations(mockAnalytics *MockAnalytics) {
	mockAnalytics.On("UsageTotals", mock.Anything, "gpu_time").
		Return(&repository.UsageTotals{Total: 1000, Count: 10}, nil)
	mockAnalytics.On("IngestionLag", mock.Anything, time.Hour).
		Return([]repository.LagBucket{{EventCount: 10, MinLatencyMs: 5, MaxLatencyMs: 50, AvgLatencyMs: 20}}, nil)
	mockAnalytics.On("GroupedUsage", mock.Anything).
		Return([]repository.GroupedUsage{{Total: 500, EventName: "gpu_time"}}, nil)
	mockAnalytics.On("EventCount", mock.Anything, "gpu_time").
		Return(uint64(10), nil)
	mockAnalytics.On("DurationStats", mock.Anything, "gpu_time").
		Return(&repository.DurationStats{AvgDurationMs: 100, MaxDurationMs: 249}, nil)
}

func newTestMonitor(analytics repository.Analytics) *Monitor {
	return New(analytics, Config{
		PollInterval: time.Millisecond,
	}, zap.NewNop(), metrics.NewNop())
}

func TestMonitor_Run_StopsOnCancellation(t *testing.T) {
	mockAnalytics := new(MockAnalytics)
	healthyExpectations(mockAnalytics)

	m := newTestMonitor(mockAnalytics)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := m.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	mockAnalytics.AssertCalled(t, "UsageTotals", mock.Anything, "gpu_time")
	mockAnalytics.AssertCalled(t, "DurationStats", mock.Anything, "gpu_time")
}

func TestMonitor_Run_QueryFailureDoesNotStopLoop(t *testing.T) {
	mockAnalytics := new(MockAnalytics)

	// UsageTotals fails on cycle 3; all other cycles and queries succeed
	var cycles atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queryErr := errors.New("clickhouse connection reset")
	mockAnalytics.On("UsageTotals", mock.Anything, "gpu_time").
		Return(&repository.UsageTotals{Total: 1000, Count: 10}, nil).Twice()
	mockAnalytics.On("UsageTotals", mock.Anything, "gpu_time").
		Return(nil, queryErr).Once()
	mockAnalytics.On("UsageTotals", mock.Anything, "gpu_time").
		Return(&repository.UsageTotals{Total: 1000, Count: 10}, nil)
	mockAnalytics.On("IngestionLag", mock.Anything, time.Hour).
		Return([]repository.LagBucket{}, nil)
	mockAnalytics.On("GroupedUsage", mock.Anything).
		Return([]repository.GroupedUsage{}, nil)
	mockAnalytics.On("EventCount", mock.Anything, "gpu_time").
		Return(uint64(10), nil)
	mockAnalytics.On("DurationStats", mock.Anything, "gpu_time").
		Return(&repository.DurationStats{}, nil).
		Run(func(args mock.Arguments) {
			if cycles.Add(1) == 10 {
				cancel()
			}
		})

	m := newTestMonitor(mockAnalytics)
	err := m.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, cycles.Load(), int64(10), "loop must survive a failing query")
	mockAnalytics.AssertNumberOfCalls(t, "UsageTotals", int(cycles.Load()))
}

func TestMonitor_Run_FailedQueryDoesNotSkipRest(t *testing.T) {
	mockAnalytics := new(MockAnalytics)

	queryErr := errors.New("query timeout")
	mockAnalytics.On("UsageTotals", mock.Anything, "gpu_time").Return(nil, queryErr)
	mockAnalytics.On("IngestionLag", mock.Anything, time.Hour).Return(nil, queryErr)
	mockAnalytics.On("GroupedUsage", mock.Anything).Return(nil, queryErr)
	mockAnalytics.On("EventCount", mock.Anything, "gpu_time").Return(uint64(0), queryErr)
	mockAnalytics.On("DurationStats", mock.Anything, "gpu_time").Return(nil, queryErr)

	m := newTestMonitor(mockAnalytics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx)

	// One full cycle runs before the cancelled context is observed
	require.ErrorIs(t, err, context.Canceled)
	mockAnalytics.AssertCalled(t, "UsageTotals", mock.Anything, "gpu_time")
	mockAnalytics.AssertCalled(t, "IngestionLag", mock.Anything, time.Hour)
	mockAnalytics.AssertCalled(t, "GroupedUsage", mock.Anything)
	mockAnalytics.AssertCalled(t, "EventCount", mock.Anything, "gpu_time")
	mockAnalytics.AssertCalled(t, "DurationStats", mock.Anything, "gpu_time")
}
