package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/event-inventory/internal/config"
	"github.com/rl1809/event-inventory/internal/port"
)

// Open connects the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (port.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		store, err := OpenMySQL(ctx, cfg.MySQLDSN, cfg.TxMaxAttempts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := OpenPostgres(ctx, cfg.PostgresDSN, cfg.TxMaxAttempts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		store, err := OpenSQLite(ctx, cfg.SQLitePath, cfg.TxMaxAttempts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMongo:
		store, err := OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenGuard returns the Redis guard when an address is configured and the
// in-process guard otherwise. The returned close func is never nil.
func OpenGuard(ctx context.Context, cfg *config.Config) (port.SubmissionGuard, func() error, error) {
	if cfg.RedisAddr == "" {
		return NewMemoryGuard(cfg.SubmissionGuardTTL), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		PoolSize:     100,
		MinIdleConns: 10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisAdapter(client, cfg.SubmissionGuardTTL), client.Close, nil
}
