package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Service holds process-level settings shared by all binaries
type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" default:"development"`
	LogFile     string `envconfig:"LOG_FILE" default:""`
}

// Ingest configures the event poster
type Ingest struct {
	Endpoint         string `envconfig:"INGEST_ENDPOINT" default:"http://localhost:8080/v1/events/ingest"`
	BearerToken      string `envconfig:"INGEST_BEARER_TOKEN" default:""`
	TimeoutSec       int    `envconfig:"INGEST_TIMEOUT_SEC" default:"5"`
	MaxRetries       int    `envconfig:"INGEST_MAX_RETRIES" default:"1"`
	InitialBackoffMs int    `envconfig:"INGEST_INITIAL_BACKOFF_MS" default:"100"`
}

// Run configures the batch scheduler
type Run struct {
	TotalEvents       int    `envconfig:"RUN_TOTAL_EVENTS" default:"1000000"`
	BatchSize         int    `envconfig:"RUN_BATCH_SIZE" default:"150"`
	Rate              int    `envconfig:"RUN_RATE" default:"150"`
	PacingIntervalSec int    `envconfig:"RUN_PACING_INTERVAL_SEC" default:"1"`
	HealthPort        string `envconfig:"RUN_HEALTH_PORT" default:"8081"`
}

// Monitor configures the aggregate polling loop
type Monitor struct {
	PollIntervalMs int    `envconfig:"MONITOR_POLL_INTERVAL_MS" default:"10"`
	HealthPort     string `envconfig:"MONITOR_HEALTH_PORT" default:"8082"`
}

// ClickHouse holds connection parameters for the analytics store
type ClickHouse struct {
	Host            string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port            string `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database        string `envconfig:"CLICKHOUSE_DB" default:"flexprice"`
	User            string `envconfig:"CLICKHOUSE_USER" default:""`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	UseTLS          bool   `envconfig:"CLICKHOUSE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`
}

// MockAPI configures the local ingestion sink
type MockAPI struct {
	Port           string  `envconfig:"MOCKAPI_PORT" default:"8080"`
	RateLimitRatio float64 `envconfig:"MOCKAPI_RATE_LIMIT_RATIO" default:"0"`
	ErrorRatio     float64 `envconfig:"MOCKAPI_ERROR_RATIO" default:"0"`
}

type Config struct {
	Service    Service
	Ingest     Ingest
	Run        Run
	Monitor    Monitor
	ClickHouse ClickHouse
	MockAPI    MockAPI
}

func Load() (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

// RequestTimeout returns the per-submission timeout
func (i Ingest) RequestTimeout() time.Duration {
	return time.Duration(i.TimeoutSec) * time.Second
}

// InitialBackoff returns the first retry delay; it doubles per attempt
func (i Ingest) InitialBackoff() time.Duration {
	return time.Duration(i.InitialBackoffMs) * time.Millisecond
}

// PacingInterval returns the sleep between batches
func (r Run) PacingInterval() time.Duration {
	return time.Duration(r.PacingIntervalSec) * time.Second
}

// PollInterval returns the sleep between monitor cycles
func (m Monitor) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMs) * time.Millisecond
}
