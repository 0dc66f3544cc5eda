package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/adapter/storage"
	"github.com/rl1809/event-inventory/internal/config"
	"github.com/rl1809/event-inventory/internal/platform/observability"
)

func main() {
	path := flag.String("catalog", "cmd/seed/inventory.yaml", "YAML file listing stock items")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, false)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	c, err := loadCatalog(*path)
	if err != nil {
		logger.Fatal("invalid catalog", zap.String("path", *path), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer store.Close()

	created, skipped, err := apply(ctx, store, c, logger)
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
	logger.Info("seed complete", zap.Int("created", created), zap.Int("skipped", skipped))
}
