package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/searchprobe/internal/scenario"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

const sqlInsertRun = `INSERT INTO scenario_runs (id, started_at, duration_ms, passed, failed, errored) VALUES ($1, $2, $3, $4, $5, $6)`

func anyRunArgs() []interface{} {
	args := make([]interface{}, 6)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var started = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

func sampleReport() *scenario.RunReport {
	return &scenario.RunReport{
		ID:        "run-42",
		StartedAt: started,
		Duration:  3 * time.Second,
		Results: []scenario.Result{
			{
				Scenario:  "search-with-results",
				Status:    scenario.StatusPassed,
				StartedAt: started,
				Duration:  1500 * time.Millisecond,
				Steps:     []scenario.StepResult{{Step: "open", Status: scenario.StatusPassed}},
			},
			{
				Scenario:   "clear-search",
				Status:     scenario.StatusFailed,
				Message:    "expect input_empty: search input still holds \"tennis\"",
				StartedAt:  started,
				Duration:   time.Second,
				Screenshot: "artifacts/run-42/clear-search.png",
			},
		},
	}
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestEnsureSchema(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scenario_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, New(mock, nil).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	err := New(mock, nil).EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create schema")
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should write run and results without rollback errors", func(t *testing.T) {
		mock := newMock(t)
		core, logs := observer.New(zapcore.ErrorLevel)

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs("run-42", started, int64(3000), 1, 1, 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).
			WillReturnResult(2)
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, New(mock, zap.New(core)).SaveRun(ctx, sampleReport()))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip the copy for an empty run", func(t *testing.T) {
		mock := newMock(t)
		report := sampleReport()
		report.Results = nil

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs("run-42", started, int64(3000), 0, 0, 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, New(mock, nil).SaveRun(ctx, report))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should rollback if the run insert fails", func(t *testing.T) {
		mock := newMock(t)
		dup := errors.New("duplicate key value violates unique constraint")

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(anyRunArgs()...).WillReturnError(dup)
		mock.ExpectRollback()

		err := New(mock, nil).SaveRun(ctx, sampleReport())
		require.Error(t, err)
		assert.ErrorIs(t, err, dup)
		assert.Contains(t, err.Error(), "failed to insert run run-42")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should rollback on a short copy", func(t *testing.T) {
		mock := newMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(anyRunArgs()...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).
			WillReturnResult(1)
		mock.ExpectRollback()

		err := New(mock, nil).SaveRun(ctx, sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 2, got 1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should log a failed rollback", func(t *testing.T) {
		mock := newMock(t)
		core, logs := observer.New(zapcore.ErrorLevel)

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(anyRunArgs()...).WillReturnError(errors.New("boom"))
		mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

		require.Error(t, New(mock, zap.New(core)).SaveRun(ctx, sampleReport()))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Failed to rollback transaction", logs.All()[0].Message)
	})

	t.Run("should report a failed begin", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := New(mock, nil).SaveRun(ctx, sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}

func TestRecentRuns(t *testing.T) {
	mock := newMock(t)
	later := started.Add(time.Hour)
	rows := pgxmock.NewRows([]string{"id", "started_at", "duration_ms", "passed", "failed", "errored"}).
		AddRow("run-43", later, int64(2500), 3, 0, 0).
		AddRow("run-42", started, int64(3000), 1, 1, 0)
	mock.ExpectQuery("FROM scenario_runs").WithArgs(10).WillReturnRows(rows)

	runs, err := New(mock, nil).RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []RunSummary{
		{ID: "run-43", StartedAt: later, Duration: 2500 * time.Millisecond, Passed: 3},
		{ID: "run-42", StartedAt: started, Duration: 3 * time.Second, Passed: 1, Failed: 1},
	}, runs)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery("FROM scenario_runs").WithArgs(5).WillReturnError(errors.New("relation does not exist"))
	_, err = New(mock, nil).RecentRuns(context.Background(), 5)
	assert.ErrorContains(t, err, "failed to query runs")
}

func TestRunResults(t *testing.T) {
	mock := newMock(t)
	rows := pgxmock.NewRows([]string{"scenario", "status", "message", "started_at", "duration_ms", "screenshot", "steps"}).
		AddRow("search-with-results", "passed", "", started, int64(1500), "", []byte(`[{"step":"open","status":"passed","duration_ns":0}]`)).
		AddRow("clear-search", "failed", "nope", started, int64(1000), "shot.png", []byte(`null`))
	mock.ExpectQuery("FROM scenario_results").WithArgs("run-42").WillReturnRows(rows)

	results, err := New(mock, nil).RunResults(context.Background(), "run-42")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, scenario.StatusPassed, results[0].Status)
	assert.Equal(t, []scenario.StepResult{{Step: "open", Status: scenario.StatusPassed}}, results[0].Steps)
	assert.Equal(t, 1500*time.Millisecond, results[0].Duration)
	assert.Equal(t, scenario.StatusFailed, results[1].Status)
	assert.Equal(t, "shot.png", results[1].Screenshot)
	assert.Nil(t, results[1].Steps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunResultsBadSteps(t *testing.T) {
	mock := newMock(t)
	rows := pgxmock.NewRows([]string{"scenario", "status", "message", "started_at", "duration_ms", "screenshot", "steps"}).
		AddRow("x", "passed", "", started, int64(0), "", []byte(`{not json`))
	mock.ExpectQuery("FROM scenario_results").WithArgs("run-1").WillReturnRows(rows)

	_, err := New(mock, nil).RunResults(context.Background(), "run-1")
	assert.ErrorContains(t, err, "failed to decode steps of x")
}
