package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/orchestration"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/report"
	"github.com/imamik/stackfleet/internal/ui/tui"
	"github.com/imamik/stackfleet/internal/util/logging"
	"github.com/imamik/stackfleet/internal/util/naming"
	"github.com/imamik/stackfleet/internal/util/ptr"
)

// dashboardLogFile receives the log while the dashboard owns the terminal.
const dashboardLogFile = "stackfleet.log"

// RunOptions are the command-line settings of a run. Pointer fields are
// only applied when the flag was given.
type RunOptions struct {
	ConfigPath string

	Site     string
	Cluster  string
	Switch   string
	Walltime string
	Payload  string

	Reserve *bool
	Deploy  *bool

	JobID         int
	MinNodes      int
	NodesPerGroup int
	Groups        int

	CheckOnly bool
	KeepAlive bool
	Strict    bool
	JSON      bool
	TUI       bool

	Log LogOptions
}

// runOrchestrator runs a configuration (for testing injection).
var runOrchestrator = func(ctx context.Context, cfg *config.Config, deps provisioning.Dependencies) (*orchestration.Result, error) {
	return orchestration.New(cfg, deps).Run(ctx)
}

// Run provisions a testbed fleet and installs the software stack on it.
//
// The workflow:
//  1. Loads the configuration and applies command-line overrides
//  2. Validates the result and connects to the site frontend
//  3. Runs the orchestrator, optionally behind the dashboard
//  4. Prints the report, uploads it and pushes metrics when configured
//
// A fatal error is returned after the report is printed. A partially failed
// run returns an error only in strict mode.
func Run(ctx context.Context, opts RunOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyRunOptions(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dashboard := opts.TUI && !opts.JSON && isInteractiveTTY()
	logOut, closeLog, err := runLogOutput(cfg, dashboard)
	if err != nil {
		return err
	}
	defer closeLog()

	log, err := newLogger(opts.Log, logOut)
	if err != nil {
		return err
	}
	ctx = logging.IntoContext(ctx, log)

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}

	var result *orchestration.Result
	var runErr error
	if dashboard {
		runErr = runDashboard(ctx, cfg, svc.Deps, &result)
	} else {
		result, runErr = runOrchestrator(ctx, cfg, svc.Deps)
	}
	if result == nil {
		return runErr
	}

	format := report.FormatText
	if opts.JSON {
		format = report.FormatJSON
	}
	if err := report.Write(stdout, result, format); err != nil {
		log.Error(err, "Failed to write report")
	}

	publish(ctx, cfg, svc, result)

	if runErr != nil {
		return runErr
	}
	if cfg.Strict {
		return result.StrictErr()
	}
	return nil
}

// applyRunOptions overrides configuration values with the given flags.
// Passing a job id reuses that job unless a reservation is requested
// explicitly.
func applyRunOptions(cfg *config.Config, opts RunOptions) {
	if opts.Site != "" {
		cfg.Site = opts.Site
	}
	if opts.Cluster != "" {
		cfg.Cluster = opts.Cluster
	}
	if opts.Switch != "" {
		cfg.Switch = opts.Switch
	}
	if opts.Walltime != "" {
		cfg.Walltime = opts.Walltime
	}
	if opts.Payload != "" {
		cfg.Installer.Payload = opts.Payload
	}
	if opts.JobID > 0 {
		cfg.Reservation.JobID = opts.JobID
		cfg.Reservation.Enabled = false
	}
	cfg.Reservation.Enabled = ptr.Deref(opts.Reserve, cfg.Reservation.Enabled)
	if opts.Deploy != nil {
		cfg.Imaging.Enabled = *opts.Deploy
		if cfg.Imaging.Enabled && cfg.Imaging.Retries == 0 {
			cfg.Imaging.Retries = config.DefaultImagingTries
		}
	}
	if opts.MinNodes > 0 {
		cfg.Groups.MinNodes = opts.MinNodes
	}
	if opts.NodesPerGroup > 0 {
		cfg.Groups.NodesPerGroup = opts.NodesPerGroup
	}
	if opts.Groups > 0 {
		cfg.Groups.Count = opts.Groups
	}
	cfg.CheckOnly = cfg.CheckOnly || opts.CheckOnly
	cfg.Reservation.KeepAlive = cfg.Reservation.KeepAlive || opts.KeepAlive
	cfg.Strict = cfg.Strict || opts.Strict
}

// runLogOutput returns where the log goes: stderr, or a file in the staging
// directory while the dashboard is shown.
func runLogOutput(cfg *config.Config, dashboard bool) (io.Writer, func(), error) {
	if !dashboard {
		return os.Stderr, func() {}, nil
	}
	if err := os.MkdirAll(cfg.Installer.StagingDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	path := filepath.Join(cfg.Installer.StagingDir, dashboardLogFile)
	// #nosec G304
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// runDashboard runs the orchestrator behind the terminal dashboard.
func runDashboard(ctx context.Context, cfg *config.Config, deps provisioning.Dependencies, result **orchestration.Result) error {
	phases := orchestration.Phases(cfg)
	keys := make([]string, len(phases))
	for i, p := range phases {
		keys[i] = p.Name()
	}

	return tui.RunDashboard(ctx, cfg.Project, cfg.Site, keys,
		func(ctx context.Context, observer provisioning.Observer) (string, error) {
			deps.Observer = provisioning.MultiObserver{
				observer,
				provisioning.NewLogObserver(logr.FromContextOrDiscard(ctx)),
			}
			res, err := runOrchestrator(ctx, cfg, deps)
			*result = res
			if res == nil {
				return "", err
			}
			return string(res.State), err
		})
}

// publish uploads the report and pushes metrics. Failures are logged: the
// run itself is over.
func publish(ctx context.Context, cfg *config.Config, svc *Services, result *orchestration.Result) {
	log := logging.FromContext(ctx)
	pctx := context.WithoutCancel(ctx)

	if cfg.Report.S3.Enabled() && svc.Store != nil {
		key := naming.ReportKey(cfg.Report.S3.Prefix, result.Reservation.JobID)
		if err := report.Upload(pctx, svc.Store, cfg.Report.S3.Bucket, key, result); err != nil {
			log.Error(err, "Failed to upload report", "bucket", cfg.Report.S3.Bucket)
		} else {
			log.Info("Report uploaded", "bucket", cfg.Report.S3.Bucket, "key", key)
		}
	}

	if cfg.Metrics.Pushgateway != "" {
		grouping := map[string]string{"site": cfg.Site}
		if result.Reservation.JobID > 0 {
			grouping["oar_job"] = strconv.Itoa(result.Reservation.JobID)
		}
		if err := svc.Deps.Metrics.Push(pctx, cfg.Metrics.Pushgateway, cfg.Metrics.Job, grouping); err != nil {
			log.Error(err, "Failed to push metrics")
		}
	}
}

// IsPartialFailure reports whether err only signals a partially failed run.
func IsPartialFailure(err error) bool {
	return errors.Is(err, orchestration.ErrPartiallyFailed)
}
