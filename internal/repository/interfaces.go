package repository

import (
	"context"
	"time"
)

// UsageTotals is the sum and count of a numeric property for one event name
type UsageTotals struct {
	Total float64
	Count uint64
}

// LagBucket holds per-minute ingestion statistics: how many events landed in
// the minute and the min/avg/max delta between the event timestamp and the
// store's ingestion time.
type LagBucket struct {
	Minute       time.Time
	EventCount   uint64
	MinLatencyMs int64
	MaxLatencyMs int64
	AvgLatencyMs float64
}

// GroupedUsage is a property sum grouped by tenant, customer and event name
type GroupedUsage struct {
	Total              float64
	TenantID           string
	ExternalCustomerID string
	CustomerID         string
	EventName          string
}

// DurationStats holds avg/max duration for one event name
type DurationStats struct {
	AvgDurationMs float64
	MaxDurationMs float64
}

// Analytics defines the read-only aggregate queries the monitor runs each
// poll cycle. Implementations never mutate store state.
type Analytics interface {
	// UsageTotals sums bytes_transferred over events with the given name
	UsageTotals(ctx context.Context, eventName string) (*UsageTotals, error)

	// IngestionLag returns per-minute counts and latency stats for the
	// trailing window
	IngestionLag(ctx context.Context, window time.Duration) ([]LagBucket, error)

	// GroupedUsage sums duration_ms grouped by tenant/customer/event name
	GroupedUsage(ctx context.Context) ([]GroupedUsage, error)

	// EventCount counts events with the given name
	EventCount(ctx context.Context, eventName string) (uint64, error)

	// DurationStats returns avg/max duration_ms for the given event name
	DurationStats(ctx context.Context, eventName string) (*DurationStats, error)

	// Ping checks if the store connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}
