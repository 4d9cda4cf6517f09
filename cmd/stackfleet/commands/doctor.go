package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
)

// Doctor returns the command for diagnosing the local setup.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: auto-detect stackfleet.yaml)
//	--json: Output in JSON format
func Doctor() *cobra.Command {
	var (
		configPath string
		jsonOutput bool
		logOpts    handlers.LogOptions
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, local tools and frontend access",
		Long: `Diagnose your stackfleet setup.

  - Validates the configuration file
  - Checks the tools the installer payload needs
  - Checks that the installer payload exists
  - Connects to the site frontend over SSH

Exits non-zero when a run could not start.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Doctor(cmd.Context(), configPath, jsonOutput, logOpts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: stackfleet.yaml)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	addLogFlags(cmd, &logOpts)

	return cmd
}
