package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
	"github.com/imamik/stackfleet/internal/config"
)

// Init returns the command for interactively creating a configuration.
//
// Flags:
//
//	--output, -o: Path to output file (default "stackfleet.yaml")
//	--generate-key: Create an SSH key pair when none exists
func Init() *cobra.Command {
	var (
		outputPath  string
		generateKey bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a run configuration",
		Long: `Interactively create a run configuration file.

This command asks about:

  - The testbed site and cluster
  - Group size and number of groups
  - Reservation walltime
  - The installer payload
  - Overlay network isolation

Use --generate-key to create an SSH key pair at the configured path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath, generateKey)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", config.DefaultConfigFilename, "Output file path")
	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "Create an SSH key pair when none exists")

	return cmd
}
