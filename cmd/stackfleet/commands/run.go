package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
	"github.com/imamik/stackfleet/internal/util/ptr"
)

// Run returns the command provisioning a fleet and installing the stack.
//
// Optional flags override the configuration file:
//
//	--config, -c: Path to configuration YAML file (default: auto-detect stackfleet.yaml)
//	--job-id: Reuse a running job instead of reserving one
//	--check-only: Verify an existing fleet without imaging or installing
//	--strict: Exit non-zero when some groups fail verification
//
// Environment variables:
//
//	STACKFLEET_S3_ACCESS_KEY, STACKFLEET_S3_SECRET_KEY: object storage credentials
func Run() *cobra.Command {
	var (
		opts    handlers.RunOptions
		reserve bool
		deploy  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the fleet and install the stack",
		Long: `Provision a testbed fleet and install the software stack.

This command reserves nodes, enables the overlay network, deploys the OS
image, splits the deployed nodes into groups, installs the stack on every
group in parallel and verifies that each group reports its controller.

A job reserved by the run is released when the run ends, unless
--keep-alive is given.

Examples:
  # Run using stackfleet.yaml in the current directory
  stackfleet run

  # Reuse a running job and keep it afterwards
  stackfleet run --job-id 5150 --keep-alive

  # Re-check the controllers of an existing fleet
  stackfleet run --job-id 5150 --check-only --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("reserve") {
				opts.Reserve = ptr.To(reserve)
			}
			if cmd.Flags().Changed("deploy") {
				opts.Deploy = ptr.To(deploy)
			}
			return handlers.Run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: stackfleet.yaml)")
	f.StringVar(&opts.Site, "site", "", "Testbed site")
	f.StringVar(&opts.Cluster, "cluster", "", "Restrict the reservation to one cluster")
	f.StringVar(&opts.Switch, "switch", "", "Restrict the reservation to one switch")
	f.StringVar(&opts.Walltime, "walltime", "", "Reservation walltime, HH:MM:SS")
	f.StringVar(&opts.Payload, "payload", "", "Installer payload: directory, file or s3://bucket/key")
	f.BoolVar(&reserve, "reserve", true, "Submit a new reservation")
	f.BoolVar(&deploy, "deploy", true, "Deploy the OS image onto the nodes")
	f.IntVar(&opts.JobID, "job-id", 0, "Reuse a running job")
	f.IntVar(&opts.MinNodes, "min-nodes", 0, "Deployed nodes required to proceed")
	f.IntVar(&opts.NodesPerGroup, "nodes-per-group", 0, "Nodes in each group")
	f.IntVar(&opts.Groups, "groups", 0, "Number of groups to reserve nodes for")
	f.BoolVar(&opts.CheckOnly, "check-only", false, "Verify an existing fleet without imaging or installing")
	f.BoolVar(&opts.KeepAlive, "keep-alive", false, "Keep the reservation after the run")
	f.BoolVar(&opts.Strict, "strict", false, "Exit non-zero when some groups fail verification")
	f.BoolVar(&opts.JSON, "json", false, "Print the report as JSON")
	f.BoolVar(&opts.TUI, "tui", false, "Show a live dashboard (interactive terminals only)")
	addLogFlags(cmd, &opts.Log)

	return cmd
}
