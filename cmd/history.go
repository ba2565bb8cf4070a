package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/searchprobe/internal/config"
)

// newHistoryCmd creates and configures the `history` command.
func newHistoryCmd(deps *dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Lists saved runs, or the scenarios of one run",
		Long: `Without arguments, lists the most recent runs saved with 'run --persist'.
With a run ID, lists the outcome of every scenario in that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(cmd.Context(), cmd.OutOrStdout(), cfg, deps.stores, runID, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().String("database-url", "", "PostgreSQL URL. (Overrides config/env)")
	return cmd
}

// runHistory contains the core, testable logic of the history command.
func runHistory(ctx context.Context, out io.Writer, cfg *config.Config, provider storeProvider, runID string, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if runID != "" {
		results, err := s.RunResults(ctx, runID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no results recorded for run %s", runID)
		}
		fmt.Fprintln(w, "STATUS\tSCENARIO\tDURATION\tMESSAGE")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Status, r.Scenario, r.Duration, r.Message)
		}
		return nil
	}

	runs, err := s.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tPASSED\tFAILED\tERRORED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Duration, r.Passed, r.Failed, r.Errored)
	}
	return nil
}
