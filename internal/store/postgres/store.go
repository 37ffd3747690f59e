// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/normalize"
	"github.com/civicrag/webharvest/internal/textsplit"
)

// StoreConfig controls the Postgres connection pool used for ingested
// documents.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store writes documents, chunks and run records into Postgres. It implements
// crawl.Sink.
type Store struct {
	pool pgxPool
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveDocument inserts one document and its chunks in a single transaction,
// so a partially written document can never be observed.
func (s *Store) SaveDocument(ctx context.Context, runID string, doc normalize.Document, chunks []textsplit.Chunk) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var docID string
	err = tx.QueryRow(ctx, `
INSERT INTO documents (run_id, url, title, fingerprint, text, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		runID, doc.URL, doc.Title, doc.Fingerprint, doc.Text, time.Now().UTC(),
	).Scan(&docID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
INSERT INTO chunks (document_id, position, start_offset, end_offset, text)
VALUES ($1, $2, $3, $4, $5)`,
			docID, c.Position, c.Start, c.End, c.Text,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// SaveRun upserts the run record; the summary lands in a jsonb column.
func (s *Store) SaveRun(ctx context.Context, run crawl.RunRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
INSERT INTO ingestion_runs (id, strategy, seeds, started_at, finished_at, summary)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at, summary = EXCLUDED.summary`,
		run.ID, run.Strategy, run.Seeds, run.StartedAt, run.FinishedAt, summaryJSON,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}
