package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ramiqadoumi/go-care-tasks/internal/postgres/migrations"
)

const migrationsTable = "schema_migrations"

// MigrateDirection selects what Migrate does.
type MigrateDirection string

const (
	MigrateUp     MigrateDirection = "up"
	MigrateDown   MigrateDirection = "down"
	MigrateStatus MigrateDirection = "status"
)

// Migrate runs the embedded goose migrations over the pool's connection
// settings.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir MigrateDirection) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrate(ctx, db, dir)
}

func migrate(ctx context.Context, db *sql.DB, dir MigrateDirection) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	var err error
	switch dir {
	case MigrateUp:
		err = goose.UpContext(ctx, db, ".")
	case MigrateDown:
		err = goose.DownContext(ctx, db, ".")
	case MigrateStatus:
		err = goose.StatusContext(ctx, db, ".")
	default:
		return fmt.Errorf("unknown migrate direction %q", dir)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", dir, err)
	}
	return nil
}
