package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/domain"
	"github.com/usagelab/metering-loadgen/internal/generator"
	"github.com/usagelab/metering-loadgen/internal/ingest"
	"github.com/usagelab/metering-loadgen/internal/metrics"
)

// Config configures the batch scheduler
type Config struct {
	TotalEvents    int
	BatchSize      int
	Workers        int
	PacingInterval time.Duration
}

// Submitter submits a single event and reports how it settled. Satisfied by
// *ingest.Poster.
type Submitter interface {
	Post(ctx context.Context, event *domain.Event) ingest.Result
}

// Summary reports how a run settled. Submitted counts events, not attempts;
// retries are delegated to the submitter.
type Summary struct {
	Batches   int
	Submitted int
	Accepted  int
	Failed    int
}

// Scheduler partitions the total event count into fixed-size batches and
// paces batch submission. Every event in a batch is submitted concurrently
// through a bounded worker pool, and the next batch starts only after all
// in-flight submissions have settled and the pacing interval has elapsed.
type Scheduler struct {
	submitter Submitter
	config    Config
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a new scheduler
func New(submitter Submitter, config Config, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		submitter: submitter,
		config:    config,
		log:       log,
		metrics:   m,
	}
}

// Run drives the whole load generation run. Partial terminal failures never
// abort the run; a cancelled context stops it between dispatches and returns
// the partial summary together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	s.log.Info("Starting event ingestion",
		zap.Int("total_events", s.config.TotalEvents),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("workers", s.config.Workers))

	sem := make(chan struct{}, s.config.Workers)

	var summary Summary
	var accepted, failed atomic.Int64

	for start := 0; start < s.config.TotalEvents; start += s.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return s.settle(summary, &accepted, &failed), err
		}

		size := s.config.BatchSize
		if remaining := s.config.TotalEvents - start; remaining < size {
			size = remaining
		}

		batch := generator.Batch(start, size)
		s.dispatch(ctx, batch, sem, &accepted, &failed)

		summary.Batches++
		s.metrics.BatchesTotal.Inc()

		s.log.Info("Batch settled",
			zap.Int("batch", summary.Batches),
			zap.Int("batch_size", size),
			zap.Int64("accepted_total", accepted.Load()),
			zap.Int64("failed_total", failed.Load()))

		if start+size < s.config.TotalEvents {
			select {
			case <-ctx.Done():
				return s.settle(summary, &accepted, &failed), ctx.Err()
			case <-time.After(s.config.PacingInterval):
			}
		}
	}

	summary = s.settle(summary, &accepted, &failed)

	s.log.Info("Event ingestion completed",
		zap.Int("batches", summary.Batches),
		zap.Int("submitted", summary.Submitted),
		zap.Int("accepted", summary.Accepted),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// dispatch submits one batch through the worker pool and blocks until every
// submission has settled. This join is the only synchronization point
// between scheduler and poster.
func (s *Scheduler) dispatch(ctx context.Context, batch []*domain.Event, sem chan struct{}, accepted, failed *atomic.Int64) {
	var wg sync.WaitGroup

	for _, event := range batch {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(event *domain.Event) {
			defer wg.Done()
			defer func() { <-sem }()

			s.metrics.InFlight.Inc()
			defer s.metrics.InFlight.Dec()

			if result := s.submitter.Post(ctx, event); result.Accepted {
				accepted.Add(1)
			} else {
				failed.Add(1)
			}
		}(event)
	}

	wg.Wait()
}

func (s *Scheduler) settle(summary Summary, accepted, failed *atomic.Int64) Summary {
	summary.Accepted = int(accepted.Load())
	summary.Failed = int(failed.Load())
	summary.Submitted = summary.Accepted + summary.Failed
	return summary
}
