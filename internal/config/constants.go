package config

import "time"

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "stackfleet.yaml"

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultProject       = "stackfleet"
	DefaultWalltime      = "02:00:00"
	DefaultImage         = "debian11-big"
	DefaultImagingTries  = 2
	DefaultNodesPerGroup = 2
	DefaultGroupCount    = 1
	DefaultEntrypoint    = "install.sh"
	DefaultLaunchDelay   = 5 * time.Second
	DefaultSSHUser       = "root"
	DefaultSSHPort       = 22
	DefaultConcurrency   = 32
	DefaultGateway       = "access.grid5000.fr"
	DefaultMetricsJob    = "stackfleet"

	// DefaultProbeCommand prints the control-plane address recorded in the
	// node-local stack configuration, or nothing when the file has none.
	DefaultProbeCommand = `awk -F= '/^CONTROLLER_HOST=/{print $2}' /etc/stackfleet/stack.conf`

	// DefaultCheckCommand succeeds on a node that already runs the expected
	// environment; used by check-only imaging.
	DefaultCheckCommand = "test -f /etc/debian_version"
)
