package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/metrics"
	"github.com/usagelab/metering-loadgen/internal/repository"
)

// Config configures the aggregate monitor
type Config struct {
	EventName    string
	LagWindow    time.Duration
	PollInterval time.Duration
}

// Monitor runs an unbounded polling loop against the analytics store,
// logging ingestion lag and aggregate statistics each cycle. Query failures
// are logged and never terminate the loop; only context cancellation does.
type Monitor struct {
	analytics repository.Analytics
	config    Config
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a new monitor
func New(analytics repository.Analytics, config Config, log *zap.Logger, m *metrics.Metrics) *Monitor {
	if config.EventName == "" {
		config.EventName = "gpu_time"
	}
	if config.LagWindow == 0 {
		config.LagWindow = time.Hour
	}

	return &Monitor{
		analytics: analytics,
		config:    config,
		log:       log,
		metrics:   m,
	}
}

// Run polls until ctx is cancelled, returning ctx.Err()
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("Starting query monitoring",
		zap.String("event_name", m.config.EventName),
		zap.Duration("poll_interval", m.config.PollInterval))

	for {
		m.runCycle(ctx)
		m.metrics.MonitorCycles.Inc()

		select {
		case <-ctx.Done():
			m.log.Info("Query monitoring stopped")
			return ctx.Err()
		case <-time.After(m.config.PollInterval):
		}
	}
}

// runCycle executes the fixed query set in order. Each query's failure is
// isolated; the remaining queries of the cycle still run.
func (m *Monitor) runCycle(ctx context.Context) {
	if totals, err := m.analytics.UsageTotals(ctx, m.config.EventName); err != nil {
		m.queryFailed("usage totals", err)
	} else {
		m.log.Info("Usage totals",
			zap.Float64("total_bytes_transferred", totals.Total),
			zap.Uint64("count", totals.Count))
	}

	if buckets, err := m.analytics.IngestionLag(ctx, m.config.LagWindow); err != nil {
		m.queryFailed("ingestion lag", err)
	} else {
		for _, bucket := range buckets {
			m.log.Info("Ingestion lag",
				zap.Time("minute", bucket.Minute),
				zap.Uint64("events_per_minute", bucket.EventCount),
				zap.Int64("min_latency_ms", bucket.MinLatencyMs),
				zap.Int64("max_latency_ms", bucket.MaxLatencyMs),
				zap.Float64("avg_latency_ms", bucket.AvgLatencyMs))
		}
	}

	if groups, err := m.analytics.GroupedUsage(ctx); err != nil {
		m.queryFailed("grouped usage", err)
	} else {
		for _, group := range groups {
			m.log.Info("Grouped usage",
				zap.Float64("total_duration_ms", group.Total),
				zap.String("tenant_id", group.TenantID),
				zap.String("external_customer_id", group.ExternalCustomerID),
				zap.String("customer_id", group.CustomerID),
				zap.String("event_name", group.EventName))
		}
	}

	if count, err := m.analytics.EventCount(ctx, m.config.EventName); err != nil {
		m.queryFailed("event count", err)
	} else {
		m.log.Info("Event count",
			zap.String("event_name", m.config.EventName),
			zap.Uint64("count", count))
	}

	if stats, err := m.analytics.DurationStats(ctx, m.config.EventName); err != nil {
		m.queryFailed("duration stats", err)
	} else {
		m.log.Info("Duration stats",
			zap.Float64("avg_duration_ms", stats.AvgDurationMs),
			zap.Float64("max_duration_ms", stats.MaxDurationMs))
	}
}

func (m *Monitor) queryFailed(query string, err error) {
	m.metrics.MonitorFailures.Inc()
	m.log.Error("Failed to execute query",
		zap.String("query", query),
		zap.Error(err))
}
