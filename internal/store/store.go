// Package store persists run reports in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/scenario"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS scenario_runs (
    id          TEXT PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    errored     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scenario_results (
    run_id      TEXT NOT NULL REFERENCES scenario_runs(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    scenario    TEXT NOT NULL,
    status      TEXT NOT NULL,
    message     TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL,
    screenshot  TEXT NOT NULL,
    steps       JSONB NOT NULL,
    PRIMARY KEY (run_id, position)
);`

var resultColumns = []string{"run_id", "position", "scenario", "status", "message", "started_at", "duration_ms", "screenshot", "steps"}

// RunSummary is one row of run history.
type RunSummary struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Passed    int
	Failed    int
	Errored   int
}

// Store keeps run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store over pool. Callers own the pool.
func New(pool DBPool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store")}
}

// EnsureSchema creates the history tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes a run and its scenario results in one transaction.
func (s *Store) SaveRun(ctx context.Context, report *scenario.RunReport) error {
	rows := make([][]interface{}, len(report.Results))
	for i, res := range report.Results {
		steps, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(res.Steps)
		if err != nil {
			return fmt.Errorf("failed to encode steps of %s: %w", res.Scenario, err)
		}
		rows[i] = []interface{}{
			report.ID, i, res.Scenario, string(res.Status), res.Message,
			res.StartedAt.UTC(), res.Duration.Milliseconds(), res.Screenshot, steps,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	counts := report.Counts()
	_, err = tx.Exec(ctx,
		`INSERT INTO scenario_runs (id, started_at, duration_ms, passed, failed, errored) VALUES ($1, $2, $3, $4, $5, $6)`,
		report.ID, report.StartedAt.UTC(), report.Duration.Milliseconds(),
		counts[scenario.StatusPassed], counts[scenario.StatusFailed], counts[scenario.StatusErrored],
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.ID, err)
	}

	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"scenario_results"}, resultColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy scenario results: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(rows), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Saved run.", zap.String("run_id", report.ID), zap.Int("results", len(rows)))
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, started_at, duration_ms, passed, failed, errored
        FROM scenario_runs
        ORDER BY started_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var ms int64
		if err := rows.Scan(&r.ID, &r.StartedAt, &ms, &r.Passed, &r.Failed, &r.Errored); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// RunResults returns the scenario results of one run in their original order.
func (s *Store) RunResults(ctx context.Context, runID string) ([]scenario.Result, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT scenario, status, message, started_at, duration_ms, screenshot, steps
        FROM scenario_results
        WHERE run_id = $1
        ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []scenario.Result
	for rows.Next() {
		var (
			res    scenario.Result
			status string
			ms     int64
			steps  []byte
		)
		if err := rows.Scan(&res.Scenario, &status, &res.Message, &res.StartedAt, &ms, &res.Screenshot, &steps); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		res.Status = scenario.Status(status)
		res.Duration = time.Duration(ms) * time.Millisecond
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(steps, &res.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps of %s: %w", res.Scenario, err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
