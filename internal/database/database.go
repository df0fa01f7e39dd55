// Package database opens the relay's optional Postgres pool.
package database

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal/config"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	maxConns        = 8
	maxConnIdleTime = 5 * time.Minute
	connectTimeout  = 10 * time.Second
)

// New connects and migrates. It returns a nil pool when no DATABASE_URL is
// configured; callers treat that as memory-only mode.
func New(cfg *config.RelayConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not set, running without persistence")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return nil, err
	}
	if err := Migrate(pool, logger); err != nil {
		pool.Close()
		logger.Error().Err(err).Msg("failed to run migrations")
		return nil, err
	}

	logger.Info().Msg("database connection established")
	return pool, nil
}

// Open builds a pool for url and checks it answers.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pcfg.MaxConns = maxConns
	pcfg.MaxConnIdleTime = maxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations through a database/sql
// handle borrowed from the pool.
func Migrate(pool *pgxpool.Pool, logger zerolog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	logger.Info().Msg("migrations completed successfully")
	return nil
}
