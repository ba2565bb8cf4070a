package cmd

import (
	"errors"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/searchprobe/internal/observability"
)

// newLogsCmd creates and configures the `logs` command.
func newLogsCmd() *cobra.Command {
	var opts observability.FollowOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the JSON log file in a readable form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Logger.LogFile == "" {
				return errors.New("logger.log_file is not configured")
			}
			path, err := homedir.Expand(cfg.Logger.LogFile)
			if err != nil {
				return err
			}
			return observability.Follow(cmd.Context(), path, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "F", false, "Keep printing new entries")
	cmd.Flags().BoolVar(&opts.FromStart, "from-start", true, "Print the entries already in the file")
	return cmd
}
