// Package config defines the configuration model of a stackfleet run.
//
// The [Config] struct is loaded from stackfleet.yaml, overridden by
// command-line flags, defaulted and validated before any collaborator is
// contacted. Operational timeouts that rarely change per run are read from
// the environment by [LoadTimeouts].
package config
