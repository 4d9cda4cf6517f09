// Package main is the entry point for the stackfleet CLI.
//
// stackfleet reserves nodes on a shared testbed, images them, splits the
// deployed fleet into groups, installs one independent software stack per
// group and verifies that every group agrees on its controller.
//
// Commands: init, run, doctor, release.
//
// For detailed usage information, run:
//
//	stackfleet --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/stackfleet/cmd/stackfleet/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCode(err))
	}
}
