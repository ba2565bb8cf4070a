package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser/session"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/observability"
	"github.com/xkilldash9x/searchprobe/internal/scenario"
	"github.com/xkilldash9x/searchprobe/internal/store"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

const shutdownTimeout = 15 * time.Second

// runStore is the part of store.Store the commands use.
type runStore interface {
	SaveRun(ctx context.Context, report *scenario.RunReport) error
	RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	RunResults(ctx context.Context, runID string) ([]scenario.Result, error)
}

// storeProvider opens run history. The returned cleanup releases the
// connection and may be nil.
type storeProvider interface {
	Create(ctx context.Context, cfg *config.Config) (runStore, func(), error)
}

// pageProviderFunc opens the pages scenarios run in. offline selects the
// built-in sportsbook instead of a browser.
type pageProviderFunc func(ctx context.Context, cfg *config.Config, offline bool) (scenario.PageProvider, func(), error)

// dependencies are the external resources the commands reach for.
type dependencies struct {
	pages  pageProviderFunc
	stores storeProvider
	clock  waits.Clock
}

func defaultDependencies() *dependencies {
	return &dependencies{
		pages:  openPages,
		stores: &postgresStoreProvider{},
		clock:  waits.RealClock(),
	}
}

func openPages(ctx context.Context, cfg *config.Config, offline bool) (scenario.PageProvider, func(), error) {
	if offline {
		return scenario.NewOfflineProvider(nil), func() {}, nil
	}
	logger := observability.GetLogger()
	manager, err := session.NewManager(ctx, logger, cfg.Browser)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
	return manager, cleanup, nil
}

// postgresStoreProvider connects to the database named by database.url.
type postgresStoreProvider struct{}

func (p *postgresStoreProvider) Create(ctx context.Context, cfg *config.Config) (runStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (SEARCHPROBE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := store.New(pool, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}
