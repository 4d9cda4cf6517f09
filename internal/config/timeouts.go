package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	SSHDial           time.Duration // Timeout for establishing one SSH connection
	WaitStart         time.Duration // Timeout for a reservation to start running
	WaitStartPoll     time.Duration // Interval between job state polls
	RetryMaxAttempts  int           // Maximum number of retry attempts for transient failures
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - STACKFLEET_SSH_DIAL_TIMEOUT (default: 10s)
//   - STACKFLEET_WAIT_START_TIMEOUT (default: 30m)
//   - STACKFLEET_WAIT_START_POLL (default: 15s)
//   - STACKFLEET_RETRY_MAX_ATTEMPTS (default: 5)
//   - STACKFLEET_RETRY_INITIAL_DELAY (default: 2s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		SSHDial:           parseDuration("STACKFLEET_SSH_DIAL_TIMEOUT", 10*time.Second),
		WaitStart:         parseDuration("STACKFLEET_WAIT_START_TIMEOUT", 30*time.Minute),
		WaitStartPoll:     parseDuration("STACKFLEET_WAIT_START_POLL", 15*time.Second),
		RetryMaxAttempts:  parseInt("STACKFLEET_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("STACKFLEET_RETRY_INITIAL_DELAY", 2*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
