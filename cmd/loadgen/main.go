package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/config"
	"github.com/usagelab/metering-loadgen/internal/ingest"
	"github.com/usagelab/metering-loadgen/internal/logger"
	"github.com/usagelab/metering-loadgen/internal/metrics"
	"github.com/usagelab/metering-loadgen/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Service.Environment, cfg.Service.LogFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting load generator",
		zap.String("environment", cfg.Service.Environment),
		zap.String("endpoint", cfg.Ingest.Endpoint))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	poster := ingest.NewPoster(ingest.Config{
		Endpoint:       cfg.Ingest.Endpoint,
		BearerToken:    cfg.Ingest.BearerToken,
		Timeout:        cfg.Ingest.RequestTimeout(),
		MaxRetries:     cfg.Ingest.MaxRetries,
		InitialBackoff: cfg.Ingest.InitialBackoff(),
	}, log, m)

	sched := scheduler.New(poster, scheduler.Config{
		TotalEvents:    cfg.Run.TotalEvents,
		BatchSize:      cfg.Run.BatchSize,
		Workers:        cfg.Run.Rate,
		PacingInterval: cfg.Run.PacingInterval(),
	}, log, m)

	// Sidecar listener for health checks and Prometheus scrapes
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		addr := ":" + cfg.Run.HealthPort
		log.Info("Health server starting", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Health server error", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Shutting down run gracefully", zap.String("signal", sig.String()))
		cancel()
	}()

	summary, err := sched.Run(ctx)
	if err != nil {
		log.Warn("Run ended early", zap.Error(err))
	}

	log.Info("Run summary",
		zap.Int("batches", summary.Batches),
		zap.Int("submitted", summary.Submitted),
		zap.Int("accepted", summary.Accepted),
		zap.Int("failed", summary.Failed))
}
