// Package main 记忆回写消费者入口：消费对话轮次并写入 MemMachine
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ell-intel-api/internal/config"
	"ell-intel-api/internal/wire"
	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/tracer"
)

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "memory-writer",
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		Insecure:    cfg.Observability.Tracing.Insecure,
		Headers:     cfg.Observability.Tracing.Headers,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	consumer, cleanup, err := wire.InitializeWriter(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize memory writer", err)
	}
	defer cleanup()

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("memory-writer started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("memory-writer shutting down")
	cancel()
	consumer.Stop()
}
