package cmd

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/homepage"
	"github.com/xkilldash9x/searchprobe/internal/observability"
	"github.com/xkilldash9x/searchprobe/internal/search"
)

// probeResult is what a single query showed.
type probeResult struct {
	Query           string `json:"query"`
	State           string `json:"state"`
	Count           int    `json:"count"`
	RowsVisible     bool   `json:"rows_visible"`
	NoResultsBanner bool   `json:"no_results_banner"`
}

// newProbeCmd creates and configures the `probe` command.
func newProbeCmd(deps *dependencies) *cobra.Command {
	var offline, asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <query>",
		Short: "Searches once and prints what the overlay settled on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			res, err := probe(cmd.Context(), cfg, deps, offline, args[0])
			if err != nil {
				return err
			}
			return printProbe(cmd.OutOrStdout(), res, asJSON)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Probe the built-in sportsbook page instead of a browser")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().String("base-url", "", "Site base URL. (Overrides config/env)")
	cmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	return cmd
}

func probe(ctx context.Context, cfg *config.Config, deps *dependencies, offline bool, query string) (*probeResult, error) {
	logger := observability.Component("probe")

	homeOpts, err := homepage.OptionsFromConfig(cfg.Site, cfg.Search, deps.clock, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid site configuration: %w", err)
	}
	searchOpts, err := search.OptionsFromConfig(cfg.Search, deps.clock, logger)
	if err != nil {
		return nil, err
	}

	pages, release, err := deps.pages(ctx, cfg, offline)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &probeResult{Query: query}
	err = pages.WithPage(ctx, func(ctx context.Context, page browser.Page) error {
		home := homepage.New(page, homeOpts)
		if err := home.Open(ctx, cfg.Site.BaseURL); err != nil {
			return err
		}
		if err := search.Submit(ctx, home, query, cfg.Search.InputTimeout); err != nil {
			return err
		}

		session := search.NewSession(page, searchOpts)
		state, err := session.WaitSettled(ctx, cfg.Search.SettleTimeout)
		if err != nil {
			return err
		}
		res.State = state.String()
		res.Count = session.VisibleResultCount(ctx)
		res.RowsVisible = session.HasVisibleRows(ctx)
		if state.Kind == search.NoResults {
			res.NoResultsBanner, err = session.WaitNoResultsMessage(ctx, cfg.Search.MessageTimeout)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("probe %q failed: %w", query, err)
	}
	logger.Info("Probe finished.", zap.String("query", query), zap.String("state", res.State), zap.Int("count", res.Count))
	return res, nil
}

func printProbe(out io.Writer, res *probeResult, asJSON bool) error {
	if asJSON {
		buf, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode probe result: %w", err)
		}
		_, err = fmt.Fprintln(out, string(buf))
		return err
	}
	_, err := fmt.Fprintf(out, "query:     %s\nstate:     %s\ncount:     %d\nrows:      %t\nno-result: %t\n",
		res.Query, res.State, res.Count, res.RowsVisible, res.NoResultsBanner)
	return err
}
