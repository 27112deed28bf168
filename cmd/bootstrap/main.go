// Package main 创建或升级生成记录表结构，部署新版本前执行一次
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"site-gen-ai-api/internal/config"
	"site-gen-ai-api/internal/wire"
	"site-gen-ai-api/pkg/logger"
)

const migrateTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	client, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "postgres unavailable", err,
			"host", cfg.Database.Postgres.Host,
			"database", cfg.Database.Postgres.Database,
		)
	}
	defer cleanup()

	start := time.Now()
	if err := client.Migrate(ctx); err != nil {
		cleanup()
		logger.Fatal(ctx, "schema migration failed", err)
	}
	logger.Info(ctx, "bootstrap completed", "elapsed_ms", time.Since(start).Milliseconds())
}
