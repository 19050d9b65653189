package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/usagelab/metering-loadgen/internal/config"
	"github.com/usagelab/metering-loadgen/internal/logger"
	"github.com/usagelab/metering-loadgen/internal/sink"
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

	h := sink.NewHandler(sink.Config{
		RateLimitRatio: cfg.MockAPI.RateLimitRatio,
		ErrorRatio:     cfg.MockAPI.ErrorRatio,
	}, log)

	addr := ":" + cfg.MockAPI.Port
	log.Info("Mock ingestion API starting",
		zap.String("address", addr),
		zap.Float64("rate_limit_ratio", cfg.MockAPI.RateLimitRatio),
		zap.Float64("error_ratio", cfg.MockAPI.ErrorRatio))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start mock API server", zap.Error(err))
	}
}
