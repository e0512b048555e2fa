package database

import (
	"context"
	"database/sql"
	"fmt"

	migrations "github.com/campusops/portal/db/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// goose works on database/sql, so the pool is bridged through pgx/stdlib.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, *sql.DB) error) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := fn(ctx, sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
