// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/doc-harvester/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OutcomeStoreConfig controls the Postgres connection pool used for outcome rows.
type OutcomeStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// OutcomeStore writes run and item outcome rows into Postgres. Runs live in
// <table>_runs, items in <table>.
type OutcomeStore struct {
	pool  execCloser
	table string
}

var _ store.OutcomeRepository = (*OutcomeStore)(nil)

// NewOutcomeStore creates a Postgres-backed OutcomeStore using the provided config.
func NewOutcomeStore(ctx context.Context, cfg OutcomeStoreConfig) (*OutcomeStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &OutcomeStore{pool: pool, table: table}, nil
}

// NewOutcomeStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewOutcomeStoreWithPool(pool execCloser, table string) (*OutcomeStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &OutcomeStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "fetch_outcomes"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *OutcomeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the run and outcome tables when they do not exist.
func (s *OutcomeStore) Migrate(ctx context.Context) error {
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_runs (
	run_id      uuid PRIMARY KEY,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz,
	status      text NOT NULL,
	total       integer NOT NULL DEFAULT 0,
	succeeded   integer NOT NULL DEFAULT 0,
	failed      integer NOT NULL DEFAULT 0
)`, s.table)
	items := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      uuid NOT NULL,
	url         text NOT NULL,
	item_index  integer NOT NULL,
	outcome     text NOT NULL,
	strategy    text,
	path        text,
	bytes       bigint NOT NULL DEFAULT 0,
	attempts    integer NOT NULL,
	elapsed_ms  bigint NOT NULL,
	error       text,
	recorded_at timestamptz NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table)
	for _, ddl := range []string{runs, items} {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// StartRun inserts the run row; a repeated start is a no-op.
func (s *OutcomeStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	query := fmt.Sprintf(`
INSERT INTO %s_runs (run_id, started_at, status, total)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning, total); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcome upserts one item outcome keyed by (run_id, url).
func (s *OutcomeStore) RecordOutcome(ctx context.Context, rec store.OutcomeRecord) error {
	if rec.URL == "" {
		return errors.New("outcome url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	item_index,
	outcome,
	strategy,
	path,
	bytes,
	attempts,
	elapsed_ms,
	error,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (run_id, url) DO UPDATE SET
	outcome = EXCLUDED.outcome,
	strategy = EXCLUDED.strategy,
	path = EXCLUDED.path,
	bytes = EXCLUDED.bytes,
	attempts = EXCLUDED.attempts,
	elapsed_ms = EXCLUDED.elapsed_ms,
	error = EXCLUDED.error,
	recorded_at = EXCLUDED.recorded_at`, s.table)

	args := []any{
		rec.RunID,
		rec.URL,
		rec.Item,
		rec.Outcome,
		nullable(rec.Strategy),
		nullable(rec.Path),
		rec.Bytes,
		rec.Attempts,
		rec.Elapsed.Milliseconds(),
		rec.Error,
		rec.RecordedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	return nil
}

// FinishRun marks the run finished with its final counts.
func (s *OutcomeStore) FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, succeeded, failed int) error {
	query := fmt.Sprintf(`
UPDATE %s_runs
SET finished_at = $1, status = $2, succeeded = $3, failed = $4
WHERE run_id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, store.RunFinished, succeeded, failed, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: no such run", runID)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
