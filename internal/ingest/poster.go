package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/domain"
	"github.com/usagelab/metering-loadgen/internal/metrics"
)

// Config configures the poster
type Config struct {
	Endpoint       string
	BearerToken    string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// Poster submits single events to the ingestion endpoint and classifies the
// outcome. It holds no mutable state and is safe for concurrent use by many
// workers.
type Poster struct {
	client  *http.Client
	config  Config
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Result reports how a submission settled.
type Result struct {
	EventID  string
	Accepted bool
	Status   int
	Attempts int
	Err      error
}

// NewPoster creates a new poster
func NewPoster(config Config, log *zap.Logger, m *metrics.Metrics) *Poster {
	return &Poster{
		client:  &http.Client{Timeout: config.Timeout},
		config:  config,
		log:     log,
		metrics: m,
	}
}

// Post submits one event, retrying retryable failures up to the configured
// budget with exponential backoff. It emits exactly one log line per
// terminal outcome.
func (p *Poster) Post(ctx context.Context, event *domain.Event) Result {
	result := Result{EventID: event.EventID}

	payload, err := json.Marshal(event)
	if err != nil {
		result.Err = fmt.Errorf("failed to marshal event: %w", err)
		p.metrics.EventsFailed.Inc()
		p.log.Error("Event serialization failed",
			zap.String("event_id", event.EventID),
			zap.Error(result.Err))
		return result
	}

	start := time.Now()

	err = retry.Do(
		func() error {
			result.Attempts++
			status, err := p.attempt(ctx, payload)
			if status != 0 {
				result.Status = status
			}
			return err
		},
		retry.Attempts(uint(p.config.MaxRetries+1)),
		retry.Delay(p.config.InitialBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			p.metrics.RetriesTotal.Inc()
			p.log.Warn("Retrying event submission",
				zap.String("event_id", event.EventID),
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		}),
	)

	p.metrics.PostDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		result.Err = err
		p.metrics.EventsFailed.Inc()
		p.log.Error("Event submission failed",
			zap.String("event_id", event.EventID),
			zap.Int("status", result.Status),
			zap.Int("attempts", result.Attempts),
			zap.Error(err))
		return result
	}

	result.Accepted = true
	p.metrics.EventsAccepted.Inc()
	p.log.Info("Event ingested successfully",
		zap.String("event_id", event.EventID),
		zap.Int("status", result.Status),
		zap.Int("attempts", result.Attempts))
	return result
}

// attempt issues a single request and classifies the response: nil on 2xx,
// RetryableError on 429/5xx/transport failure, RejectedError otherwise.
func (p *Poster) attempt(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, &RejectedError{Body: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.BearerToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	case retryableStatus(resp.StatusCode):
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, &RetryableError{Status: resp.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &RejectedError{Status: resp.StatusCode, Body: string(body)}
	}
}
