// Package main 状态对账进程入口：重放未能落库的生成状态变更
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"site-gen-ai-api/internal/config"
	"site-gen-ai-api/internal/infrastructure/messaging"
	"site-gen-ai-api/internal/wire"
	"site-gen-ai-api/pkg/logger"
	"site-gen-ai-api/pkg/tracer"
)

// dlqAlertThreshold 死信队列超过该长度时告警
const dlqAlertThreshold = 10

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "reconcile-worker",
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	worker.Consumer.RegisterHandler(messaging.MessageTypeGenerationReconcile, worker.Reconciler.HandleMessage)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Consumer.Start(runCtx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	log := logger.FromContext(ctx)
	log.Info("reconcile-worker started")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		worker.Consumer.MonitorDLQ(gctx, dlqAlertThreshold)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("reconcile-worker shutting down")
		worker.Consumer.Stop()
		return nil
	})

	_ = g.Wait()
	log.Info("reconcile-worker exited")
}
