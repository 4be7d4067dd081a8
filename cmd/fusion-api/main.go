// Package main 融合查询 HTTP 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ell-intel-api/internal/config"
	einoobs "ell-intel-api/internal/observability/eino"
	"ell-intel-api/internal/wire"
	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting fusion-api",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
		"vector_backend", cfg.Vector.Backend,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		Insecure:       cfg.Observability.Tracing.Insecure,
		Headers:        cfg.Observability.Tracing.Headers,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Eino 全局 callbacks（LLM 指标/追踪）
	einoobs.Init()

	app, cleanupApp, err := wire.InitializeApp(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize app", err)
	}
	defer cleanupApp()

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	timeout := cfg.Server.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
