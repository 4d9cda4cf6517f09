// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stackfleet/cmd/stackfleet/handlers"
)

// Exit codes.
const (
	exitFailure        = 1
	exitPartialFailure = 2
)

// Root returns the root command for the stackfleet CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stackfleet",
		Short:         "Provision testbed fleets and install software stacks on them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Run())
	cmd.AddCommand(Doctor())
	cmd.AddCommand(Release())

	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// ExitCode maps a command error to the process exit status. A run that
// finished with failed groups under --strict exits with 2.
func ExitCode(err error) int {
	if handlers.IsPartialFailure(err) {
		return exitPartialFailure
	}
	return exitFailure
}

// addLogFlags binds the logging flags shared by commands talking to the
// testbed.
func addLogFlags(cmd *cobra.Command, opts *handlers.LogOptions) {
	cmd.Flags().StringVar(&opts.Format, "log-format", "text", "Log format: text or json")
	cmd.Flags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
}
