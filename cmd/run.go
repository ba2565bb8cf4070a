package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/observability"
	"github.com/xkilldash9x/searchprobe/internal/reporting"
	"github.com/xkilldash9x/searchprobe/internal/scenario"
)

// runFailedError means the run completed and at least one scenario did not
// pass. The summary has already been printed.
type runFailedError struct {
	counts map[scenario.Status]int
}

func (e *runFailedError) Error() string {
	return fmt.Sprintf("%d failed, %d errored", e.counts[scenario.StatusFailed], e.counts[scenario.StatusErrored])
}

type runOptions struct {
	only    []string
	offline bool
	persist bool
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(deps *dependencies) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs search scenarios against the site and writes a report",
		Long: `Runs every scenario of the scenario file (the built-in scenarios when none
is configured), each in its own browser tab, and writes a JSON or JUnit report.
The command exits non-zero when a scenario fails or errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runScenarios(cmd.Context(), cmd.OutOrStdout(), cfg, deps, opts)
		},
	}

	cmd.Flags().StringP("scenarios", "s", "", "Scenario file. (Overrides config/env)")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "Run only the named scenarios")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Run against the built-in sportsbook page instead of a browser")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "Save the run to the database named by database.url")
	cmd.Flags().StringP("format", "f", "json", "Report format (json, junit). (Overrides config/env)")
	cmd.Flags().StringP("output", "o", "", "Report file. Empty writes to stdout. (Overrides config/env)")
	cmd.Flags().IntP("concurrency", "j", 0, "Scenarios run at once. (Overrides config/env)")
	cmd.Flags().Float64("rate", 0, "Scenario starts per second, 0 for no limit. (Overrides config/env)")
	cmd.Flags().String("artifacts", "", "Directory for failure screenshots. (Overrides config/env)")
	cmd.Flags().String("base-url", "", "Site base URL. (Overrides config/env)")
	cmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL for --persist. (Overrides config/env)")
	return cmd
}

func runScenarios(ctx context.Context, out io.Writer, cfg *config.Config, deps *dependencies, opts runOptions) error {
	logger := observability.GetLogger()

	file, err := scenario.LoadFile(cfg.Runner.ScenarioFile)
	if err != nil {
		return err
	}
	file, err = file.Filter(opts.only...)
	if err != nil {
		return err
	}

	// Open the report before the run so a bad output path fails fast.
	reporter, err := reporting.NewWithStdout(cfg.Report.Format, cfg.Report.Output, out)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	var history runStore
	if opts.persist {
		s, cleanup, err := deps.stores.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		history = s
	}

	pages, release, err := deps.pages(ctx, cfg, opts.offline)
	if err != nil {
		return err
	}
	defer release()

	runner, err := scenario.NewRunner(pages, cfg, deps.clock, logger)
	if err != nil {
		return err
	}
	report, runErr := runner.Run(ctx, file.Scenarios)
	if report == nil {
		return runErr
	}

	if err := reporter.Write(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if history != nil {
		// The run is recorded even when ctx was canceled midway.
		if err := history.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}
	if cfg.Report.Output != "" && cfg.Report.Output != "stdout" {
		printSummary(out, report)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run aborted by user signal")
		}
		return runErr
	}
	if !report.Passed() {
		return &runFailedError{counts: report.Counts()}
	}
	return nil
}

// printSummary writes one line per scenario followed by the totals.
func printSummary(out io.Writer, report *scenario.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Status, res.Scenario, res.Duration.Round(10*time.Millisecond), res.Message)
	}
	_ = w.Flush()

	counts := report.Counts()
	fmt.Fprintf(out, "\nRun %s: %d passed, %d failed, %d errored\n",
		report.ID, counts[scenario.StatusPassed], counts[scenario.StatusFailed], counts[scenario.StatusErrored])
}
