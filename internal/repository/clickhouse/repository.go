package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/usagelab/metering-loadgen/internal/repository"
)

// Repository implements repository.Analytics against the metering
// platform's events table. All queries are read-only.
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// UsageTotals sums the bytes_transferred property over all events with the
// given name
func (r *Repository) UsageTotals(ctx context.Context, eventName string) (*repository.UsageTotals, error) {
	query := `
	SELECT sum(value) AS total, count() AS count
	FROM (
		SELECT JSONExtractFloat(properties, 'bytes_transferred') AS value
		FROM events
		WHERE event_name = ?
	)
	`

	var result repository.UsageTotals
	row := r.client.Conn().QueryRow(ctx, query, eventName)
	if err := row.Scan(&result.Total, &result.Count); err != nil {
		return nil, fmt.Errorf("failed to query usage totals: %w", err)
	}

	return &result, nil
}

// IngestionLag returns per-minute event counts and min/avg/max
// timestamp-to-ingestion latency over the trailing window, newest first
func (r *Repository) IngestionLag(ctx context.Context, window time.Duration) ([]repository.LagBucket, error) {
	query := `
	SELECT
		toStartOfMinute(timestamp) AS minute,
		count() AS events_per_minute,
		min(dateDiff('millisecond', timestamp, ingested_at)) AS min_latency_ms,
		max(dateDiff('millisecond', timestamp, ingested_at)) AS max_latency_ms,
		avg(dateDiff('millisecond', timestamp, ingested_at)) AS avg_latency_ms
	FROM events
	WHERE timestamp >= now() - INTERVAL ? SECOND
	GROUP BY minute
	ORDER BY minute DESC
	`

	rows, err := r.client.Conn().Query(ctx, query, int64(window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion lag: %w", err)
	}
	defer r.closeRows(rows)

	var buckets []repository.LagBucket
	for rows.Next() {
		var bucket repository.LagBucket
		if err := rows.Scan(
			&bucket.Minute,
			&bucket.EventCount,
			&bucket.MinLatencyMs,
			&bucket.MaxLatencyMs,
			&bucket.AvgLatencyMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lag bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lag buckets: %w", err)
	}

	return buckets, nil
}

// GroupedUsage sums the duration_ms property grouped by tenant, customer and
// event name
func (r *Repository) GroupedUsage(ctx context.Context) ([]repository.GroupedUsage, error) {
	query := `
	SELECT
		sum(value) AS total,
		tenant_id,
		external_customer_id,
		customer_id,
		event_name
	FROM (
		SELECT
			JSONExtractFloat(assumeNotNull(properties), 'duration_ms') AS value,
			tenant_id,
			external_customer_id,
			customer_id,
			event_name
		FROM events
	)
	GROUP BY tenant_id, external_customer_id, customer_id, event_name
	`

	rows, err := r.client.Conn().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped usage: %w", err)
	}
	defer r.closeRows(rows)

	var groups []repository.GroupedUsage
	for rows.Next() {
		var group repository.GroupedUsage
		if err := rows.Scan(
			&group.Total,
			&group.TenantID,
			&group.ExternalCustomerID,
			&group.CustomerID,
			&group.EventName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grouped usage row: %w", err)
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grouped usage rows: %w", err)
	}

	return groups, nil
}

// EventCount counts events with the given name
func (r *Repository) EventCount(ctx context.Context, eventName string) (uint64, error) {
	query := `
	SELECT count() AS count
	FROM events
	WHERE event_name = ?
	`

	var count uint64
	row := r.client.Conn().QueryRow(ctx, query, eventName)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query event count: %w", err)
	}

	return count, nil
}

// DurationStats returns avg/max duration_ms for events with the given name
func (r *Repository) DurationStats(ctx context.Context, eventName string) (*repository.DurationStats, error) {
	query := `
	SELECT avg(duration) AS avg_duration, max(duration) AS max_duration
	FROM (
		SELECT JSONExtractFloat(properties, 'duration_ms') AS duration
		FROM events
		WHERE event_name = ?
	)
	`

	var stats repository.DurationStats
	row := r.client.Conn().QueryRow(ctx, query, eventName)
	if err := row.Scan(&stats.AvgDurationMs, &stats.MaxDurationMs); err != nil {
		return nil, fmt.Errorf("failed to query duration stats: %w", err)
	}

	return &stats, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) closeRows(rows driver.Rows) {
	if err := rows.Close(); err != nil {
		r.log.Error("Failed to close rows", zap.Error(err))
	}
}
