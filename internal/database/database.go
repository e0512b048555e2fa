package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
)

type Database struct {
	pool    *pgxpool.Pool
	queries *db.Queries
}

func New(cfg *config.DatabaseConfig) (*Database, error) {
	pool, err := pgxpool.New(context.Background(), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Activate and test the connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return FromPool(pool), nil
}

// FromPool wraps an existing pool, used by tests that own their container.
func FromPool(pool *pgxpool.Pool) *Database {
	return &Database{
		pool:    pool,
		queries: db.New(pool),
	}
}

func (d *Database) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func (d *Database) Queries() *db.Queries {
	return d.queries
}

func (d *Database) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// WithTx runs fn in a read-committed transaction and commits when fn returns
// nil. The callback receives queries bound to the transaction.
func (d *Database) WithTx(ctx context.Context, fn func(pgx.Tx, *db.Queries) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx, d.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Migrate applies the embedded goose migrations.
func (d *Database) Migrate(ctx context.Context) error {
	return runMigrations(ctx, d.pool, func(ctx context.Context, sqlDB *sql.DB) error {
		return goose.UpContext(ctx, sqlDB, ".")
	})
}

// Reset rolls every migration back, dropping all portal tables.
func (d *Database) Reset(ctx context.Context) error {
	return runMigrations(ctx, d.pool, func(ctx context.Context, sqlDB *sql.DB) error {
		return goose.DownToContext(ctx, sqlDB, ".", 0)
	})
}

func (d *Database) MigrationVersion(ctx context.Context) (int64, error) {
	var version int64
	err := runMigrations(ctx, d.pool, func(ctx context.Context, sqlDB *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, sqlDB)
		version = v
		return err
	})
	return version, err
}
