// Package localstore keeps per-install client state in a SQLite file.
package localstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Keys used by the game client.
const (
	KeyPlayerID  = "mathquest_player_id"
	KeyInventory = "mathquest_inventory"
	KeyPoints    = "mathquest_points"
	KeyStats     = "mathquest_stats"
)

// Store is best effort: write and read failures are logged, never returned.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "localstore").Logger()
	logger.Debug().Str("path", path).Msg("opening local store")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db, path, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

type pragma struct {
	name  string
	value string
}

func applyPragmas(db *sql.DB, path string, logger zerolog.Logger) error {
	pragmas := []pragma{
		{"busy_timeout", "5000"},
		{"synchronous", "NORMAL"},
	}
	if path != ":memory:" {
		pragmas = append(pragmas, pragma{"journal_mode", "WAL"})
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)); err != nil {
			logger.Warn().Err(err).Str("pragma", pragma.name).Msg("failed to set pragma")
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// Save stores v as JSON under key.
func (s *Store) Save(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to encode value")
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to save value")
	}
}

// Load decodes the value under key into dst and reports whether it existed.
func (s *Store) Load(key string, dst any) bool {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to load value")
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to decode value")
		return false
	}
	return true
}

func (s *Store) Delete(key string) {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete value")
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}
