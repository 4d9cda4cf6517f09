package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/imamik/stackfleet/internal/fleet"
)

var (
	walltimeRegex = regexp.MustCompile(`^\d{1,3}:[0-5]\d(:[0-5]\d)?$`)
	siteRegex     = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !siteRegex.MatchString(c.Site) {
		errs = append(errs, fmt.Errorf("site %q is invalid: expected a lowercase site name such as nancy", c.Site))
	}
	if !walltimeRegex.MatchString(c.Walltime) {
		errs = append(errs, fmt.Errorf("walltime %q is invalid: expected HH:MM[:SS]", c.Walltime))
	}
	if c.Image == "" {
		errs = append(errs, errors.New("image is required"))
	}

	errs = append(errs, c.validateReservation()...)
	errs = append(errs, c.validateGroups()...)
	errs = append(errs, c.validateInstaller()...)

	if c.Imaging.Retries < 0 {
		errs = append(errs, fmt.Errorf("imaging.retries must not be negative, got %d", c.Imaging.Retries))
	}
	if strings.TrimSpace(c.Verify.ProbeCommand) == "" {
		errs = append(errs, errors.New("verify.probeCommand is required"))
	}
	if c.SSH.User == "" {
		errs = append(errs, errors.New("ssh.user is required"))
	}
	if c.SSH.PrivateKeyPath == "" {
		errs = append(errs, errors.New("ssh.privateKeyPath is required"))
	}
	if c.SSH.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ssh.concurrency must be at least 1, got %d", c.SSH.Concurrency))
	}
	if c.Report.S3.Enabled() && c.Report.S3.Endpoint == "" {
		errs = append(errs, errors.New("report.s3.endpoint is required when a bucket is set"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateReservation() []error {
	var errs []error
	if !c.Reservation.Enabled && c.Reservation.JobID == 0 {
		errs = append(errs, fleet.ErrMissingJobID)
	}
	if c.Reservation.JobID < 0 {
		errs = append(errs, fmt.Errorf("reservation.jobId must be positive, got %d", c.Reservation.JobID))
	}
	if c.Reservation.Enabled && c.Reservation.JobID != 0 {
		errs = append(errs, errors.New("reservation.enabled and reservation.jobId are mutually exclusive"))
	}
	return errs
}

func (c *Config) validateGroups() []error {
	var errs []error
	if c.Groups.NodesPerGroup < 1 {
		errs = append(errs, fmt.Errorf("groups.nodesPerGroup must be at least 1, got %d", c.Groups.NodesPerGroup))
	}
	if c.Groups.Count < 1 {
		errs = append(errs, fmt.Errorf("groups.count must be at least 1, got %d", c.Groups.Count))
	}
	if c.Groups.MinNodes < 0 {
		errs = append(errs, fmt.Errorf("groups.minNodes must not be negative, got %d", c.Groups.MinNodes))
	}
	if !c.Groups.Remainder.IsValid() {
		errs = append(errs, fmt.Errorf("groups.remainder %q is invalid: expected keep, drop or error", c.Groups.Remainder))
	}
	return errs
}

func (c *Config) validateInstaller() []error {
	if c.CheckOnly {
		return nil
	}

	var errs []error
	if c.Installer.Payload == "" {
		errs = append(errs, errors.New("installer.payload is required unless running in check-only mode"))
	}
	if c.Installer.Entrypoint == "" || strings.Contains(c.Installer.Entrypoint, "..") {
		errs = append(errs, fmt.Errorf("installer.entrypoint %q is invalid", c.Installer.Entrypoint))
	}
	if c.Installer.StagingDir == "" {
		errs = append(errs, errors.New("installer.stagingDir is required"))
	}
	if d := c.Installer.Stagger(); d < 0 {
		errs = append(errs, fmt.Errorf("installer.launchDelay must not be negative, got %v", d))
	}
	return errs
}
