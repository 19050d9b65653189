package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/config"
	"github.com/usagelab/metering-loadgen/internal/logger"
	"github.com/usagelab/metering-loadgen/internal/metrics"
	"github.com/usagelab/metering-loadgen/internal/monitor"
	"github.com/usagelab/metering-loadgen/internal/repository/clickhouse"
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

	log.Info("Starting aggregate monitor",
		zap.String("environment", cfg.Service.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Shutting down monitor gracefully", zap.String("signal", sig.String()))
		cancel()
	}()

	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}

	repo := clickhouse.NewRepository(chClient, log)
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	// Health endpoint backed by a store ping, for liveness checks while the
	// loop runs
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := repo.Ping(r.Context()); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		addr := ":" + cfg.Monitor.HealthPort
		log.Info("Health server starting", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Health server error", zap.Error(err))
		}
	}()

	mon := monitor.New(repo, monitor.Config{
		PollInterval: cfg.Monitor.PollInterval(),
	}, log, metrics.NewNop())

	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Monitor error", zap.Error(err))
	}
}
