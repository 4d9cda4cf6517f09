package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
)

// Release returns the command deleting a reservation.
func Release() *cobra.Command {
	var (
		configPath string
		site       string
		jobID      int
		logOpts    handlers.LogOptions
	)

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release a reservation",
		Long: `Release a reservation kept by --keep-alive or left behind by an
interrupted run.

Examples:
  stackfleet release --job-id 5150
  stackfleet release --job-id 5150 --site lyon`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Release(cmd.Context(), configPath, site, jobID, logOpts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: stackfleet.yaml)")
	cmd.Flags().StringVar(&site, "site", "", "Site of the job (default: from the configuration)")
	cmd.Flags().IntVar(&jobID, "job-id", 0, "Job to release")
	_ = cmd.MarkFlagRequired("job-id")
	addLogFlags(cmd, &logOpts)

	return cmd
}
