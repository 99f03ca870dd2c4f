package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"learnhub/internal/config"
	"learnhub/internal/repository"
)

// Backend es el Store elegido por DB_DRIVER. Pool solo existe con postgres.
type Backend struct {
	Store repository.Store
	Pool  *pgxpool.Pool
	close func()
}

func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// OpenBackend abre el Store configurado. Con postgres aplica las
// migraciones pendientes antes de devolverlo.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := ApplyMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		return &Backend{Store: repository.NewPgStore(pool), Pool: pool, close: pool.Close}, nil
	case config.DriverSQLite:
		gdb, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return &Backend{Store: repository.NewGormStore(gdb), close: closeFn}, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Backend{Store: repository.NewMemoryStore()}, nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}
