// Package storage opens the task repository a binary is configured for.
package storage

import (
	"context"
	"fmt"

	"github.com/ramiqadoumi/go-care-tasks/internal/postgres"
	"github.com/ramiqadoumi/go-care-tasks/internal/sqlite"
	"github.com/ramiqadoumi/go-care-tasks/internal/store"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and addresses one store.
type Config struct {
	Driver      string
	PostgresDSN string
	MaxConns    int32
	SQLitePath  string
}

// Open connects the configured store. The returned close func releases the
// underlying pool or database handle.
func Open(ctx context.Context, cfg Config) (store.TaskRepository, func(), error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return postgres.NewRepository(pool), pool.Close, nil

	case DriverSQLite, "":
		db, err := sqlite.NewDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite handle: %w", err)
		}
		return sqlite.NewRepository(db), func() { _ = sqlDB.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
