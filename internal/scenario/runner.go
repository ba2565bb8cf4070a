package scenario

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/homepage"
	"github.com/xkilldash9x/searchprobe/internal/search"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

const screenshotTimeout = 10 * time.Second

// PageProvider hands out a page for the duration of fn and releases it
// afterwards, however fn ends.
type PageProvider interface {
	WithPage(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) error
}

// Runner executes scenarios concurrently, one page each.
type Runner struct {
	provider   PageProvider
	cfg        *config.Config
	clock      waits.Clock
	logger     *zap.Logger
	limiter    *rate.Limiter
	homeOpts   homepage.Options
	searchOpts search.Options
}

// NewRunner prepares a runner. The page objects' options are compiled once
// here so that configuration errors surface before any page is opened.
func NewRunner(provider PageProvider, cfg *config.Config, clock waits.Clock, logger *zap.Logger) (*Runner, error) {
	if clock == nil {
		clock = waits.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	homeOpts, err := homepage.OptionsFromConfig(cfg.Site, cfg.Search, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid site configuration: %w", err)
	}
	searchOpts, err := search.OptionsFromConfig(cfg.Search, clock, logger)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.Runner.StartsPerSecond > 0 {
		limit = rate.Limit(cfg.Runner.StartsPerSecond)
	}
	return &Runner{
		provider:   provider,
		cfg:        cfg,
		clock:      clock,
		logger:     logger.Named("runner"),
		limiter:    rate.NewLimiter(limit, 1),
		homeOpts:   homeOpts,
		searchOpts: searchOpts,
	}, nil
}

// Run executes every scenario and reports each one. Scenario failures are in
// the report; the error is only set when ctx ends the run early.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*RunReport, error) {
	report := &RunReport{
		ID:        uuid.NewString(),
		StartedAt: r.clock.Now(),
		Results:   make([]Result, len(scenarios)),
	}
	logger := r.logger.With(zap.String("run_id", report.ID))
	logger.Info("Starting run.", zap.Int("scenarios", len(scenarios)), zap.Int("concurrency", r.concurrency()))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, sc := range scenarios {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				report.Results[i] = Result{
					Scenario:  sc.Name,
					Status:    StatusErrored,
					Message:   fmt.Sprintf("not started: %v", err),
					StartedAt: r.clock.Now(),
				}
				return nil
			}
			report.Results[i] = r.runOne(gctx, report.ID, sc, logger)
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = r.clock.Now().Sub(report.StartedAt)

	counts := report.Counts()
	logger.Info("Run finished.",
		zap.Int("passed", counts[StatusPassed]),
		zap.Int("failed", counts[StatusFailed]),
		zap.Int("errored", counts[StatusErrored]),
		zap.Duration("duration", report.Duration))
	return report, ctx.Err()
}

func (r *Runner) concurrency() int {
	if r.cfg.Runner.Concurrency > 0 {
		return r.cfg.Runner.Concurrency
	}
	return 1
}

func (r *Runner) runOne(ctx context.Context, runID string, sc Scenario, logger *zap.Logger) Result {
	logger = logger.With(zap.String("scenario", sc.Name))
	if r.cfg.Runner.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Runner.ScenarioTimeout)
		defer cancel()
	}

	res := Result{Scenario: sc.Name, Description: sc.Description, StartedAt: r.clock.Now()}
	logger.Info("Scenario started.")

	err := r.provider.WithPage(ctx, func(ctx context.Context, page browser.Page) error {
		exec := r.newExecution(sc, page)
		for i, step := range sc.Steps {
			start := r.clock.Now()
			serr := exec.do(ctx, step)
			sr := StepResult{Step: step.Raw, Status: classify(serr), Duration: r.clock.Now().Sub(start)}
			if serr == nil {
				res.Steps = append(res.Steps, sr)
				continue
			}
			sr.Message = serr.Error()
			res.Steps = append(res.Steps, sr)
			for _, rest := range sc.Steps[i+1:] {
				res.Steps = append(res.Steps, StepResult{Step: rest.Raw, Status: StatusSkipped})
			}
			res.Screenshot = r.capture(ctx, page, runID, sc.Name, logger)
			return serr
		}
		return nil
	})

	res.Duration = r.clock.Now().Sub(res.StartedAt)
	res.Status = classify(err)
	if err != nil {
		res.Message = err.Error()
		logger.Warn("Scenario did not pass.", zap.String("status", string(res.Status)), zap.Error(err))
	} else {
		logger.Info("Scenario passed.", zap.Duration("duration", res.Duration))
	}
	return res
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// capture stores a screenshot of page under the artifacts directory and
// returns its path, or "" when none could be taken.
func (r *Runner) capture(ctx context.Context, page browser.Page, runID, name string, logger *zap.Logger) string {
	shooter, ok := page.(browser.Screenshotter)
	if !ok || r.cfg.Runner.ArtifactsDir == "" {
		return ""
	}
	// The scenario context may be what just expired.
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()
	buf, err := shooter.Screenshot(shotCtx)
	if err != nil {
		logger.Warn("Failed to capture screenshot.", zap.Error(err))
		return ""
	}

	dir := filepath.Join(r.cfg.Runner.ArtifactsDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("Failed to create artifacts directory.", zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, unsafeName.ReplaceAllString(name, "_")+extension(buf))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		logger.Warn("Failed to write screenshot.", zap.Error(err))
		return ""
	}
	logger.Info("Screenshot saved.", zap.String("path", path))
	return path
}

func extension(buf []byte) string {
	switch http.DetectContentType(buf) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "text/html; charset=utf-8":
		return ".html"
	default:
		return ".bin"
	}
}
