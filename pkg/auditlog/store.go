// Copyright 2025 Certen Protocol
//
// Postgres audit log for finalized randomness rounds: one row per round,
// with a pooled connection and a ping-on-open health check.

package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Store persists one row per finalized round. It implements
// rngabci.RoundSink without importing rngabci, to keep the dependency
// edge pointing from the consensus layer outward to its sinks rather
// than the reverse.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Config controls the Postgres connection pool.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres and verifies the connection with a ping.
func Open(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("audit log: database URL cannot be empty")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("audit log: open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit log: ping database: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[AuditLog] ", log.LstdFlags),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the rounds table if it does not already exist. Kept
// as a single inline statement rather than an embedded migrations
// directory since the schema is one table.
func (s *Store) Migrate(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS randomness_rounds (
	height        BIGINT PRIMARY KEY,
	seed_hex      TEXT NOT NULL,
	randomness_hex TEXT NOT NULL,
	participants  INTEGER NOT NULL,
	finalized_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("audit log: migrate: %w", err)
	}
	return nil
}

// RecordRound inserts one finalized round. Implements rngabci.RoundSink.
func (s *Store) RecordRound(ctx context.Context, height int64, seedHex, randomnessHex string, participants int) error {
	const stmt = `
INSERT INTO randomness_rounds (height, seed_hex, randomness_hex, participants)
VALUES ($1, $2, $3, $4)
ON CONFLICT (height) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, stmt, height, seedHex, randomnessHex, participants); err != nil {
		return fmt.Errorf("audit log: record round: %w", err)
	}
	return nil
}

// Round is one finalized-round audit record.
type Round struct {
	Height        int64     `json:"height"`
	SeedHex       string    `json:"seed_hex"`
	RandomnessHex string    `json:"randomness_hex"`
	Participants  int       `json:"participants"`
	FinalizedAt   time.Time `json:"finalized_at"`
}

// History returns the most recent limit rounds, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT height, seed_hex, randomness_hex, participants, finalized_at
FROM randomness_rounds
ORDER BY height DESC
LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("audit log: history query: %w", err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var r Round
		if err := rows.Scan(&r.Height, &r.SeedHex, &r.RandomnessHex, &r.Participants, &r.FinalizedAt); err != nil {
			return nil, fmt.Errorf("audit log: scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Healthy pings the database, for the /health endpoint.
func (s *Store) Healthy(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
