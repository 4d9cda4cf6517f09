// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/platform/g5k"
	"github.com/imamik/stackfleet/internal/platform/localexec"
	"github.com/imamik/stackfleet/internal/platform/s3"
	"github.com/imamik/stackfleet/internal/platform/ssh"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/report"
	"github.com/imamik/stackfleet/internal/util/logging"
)

// Environment variables holding object storage credentials.
const (
	envS3AccessKey = "STACKFLEET_S3_ACCESS_KEY"
	envS3SecretKey = "STACKFLEET_S3_SECRET_KEY"
)

// ObjectStore downloads payloads and stores reports.
type ObjectStore interface {
	provisioning.Downloader
	report.Uploader
}

// Services are the collaborators built for one command.
type Services struct {
	Deps provisioning.Dependencies

	// Store is nil when no object storage is configured.
	Store ObjectStore
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// findConfigFile finds stackfleet.yaml in the working directory or above.
	findConfigFile = config.FindConfigFile

	// loadConfigFile loads and defaults a config file without validating it.
	loadConfigFile = config.LoadWithoutValidation

	// readPrivateKey reads the SSH private key.
	readPrivateKey = os.ReadFile

	// newFrontend creates the executor running scheduler and imaging commands.
	newFrontend = func(cfg *ssh.Config) (g5k.Executor, error) {
		return ssh.NewClient(cfg)
	}

	// newServices builds every collaborator a run needs.
	newServices = buildServices

	// newObjectStore creates the S3 client.
	newObjectStore = func(ctx context.Context, s config.S3Config) (ObjectStore, error) {
		return s3.NewClient(ctx, s.Endpoint, s.Region, os.Getenv(envS3AccessKey), os.Getenv(envS3SecretKey))
	}

	// isInteractiveTTY reports whether stdout is a terminal.
	isInteractiveTTY = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	// stdout receives reports and command output.
	stdout io.Writer = os.Stdout
)

// loadConfig loads a configuration file. If configPath is empty, it looks
// for stackfleet.yaml in the current directory and its parents.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		path, err := findConfigFile()
		if err != nil {
			return nil, fmt.Errorf("no config file found: %w\nRun 'stackfleet init' to create one", err)
		}
		configPath = path
	}

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LogOptions selects the logger of a command.
type LogOptions struct {
	Format    string
	Verbosity int
}

// newLogger builds the command logger writing to out.
func newLogger(opts LogOptions, out io.Writer) (logr.Logger, error) {
	log, err := logging.New(logging.Options{
		Format:    logging.Format(opts.Format),
		Verbosity: opts.Verbosity,
		Output:    out,
	})
	if err != nil {
		return logr.Discard(), err
	}
	return log.WithName("stackfleet"), nil
}

// expandHome replaces a leading ~ with the home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// sshConfig returns the connection settings shared by frontend and nodes.
func sshConfig(cfg *config.Config, key []byte, timeouts *config.Timeouts) *ssh.Config {
	c := &ssh.Config{
		User:        cfg.SSH.User,
		Port:        cfg.SSH.Port,
		PrivateKey:  key,
		DialTimeout: timeouts.SSHDial,
		MaxRetries:  timeouts.RetryMaxAttempts,
		RetryDelay:  timeouts.RetryInitialDelay,
	}
	if cfg.SSH.Gateway != "" {
		c.Gateway = &ssh.Gateway{Host: cfg.SSH.Gateway, User: cfg.SSH.GatewayUser}
	}
	return c
}

// frontendConfig returns the connection settings of the site frontend.
func frontendConfig(cfg *config.Config, key []byte, timeouts *config.Timeouts) *ssh.Config {
	c := sshConfig(cfg, key, timeouts)
	c.Host = cfg.FrontendHost()
	c.User = cfg.FrontendUser()
	c.Port = 0
	return c
}

// connectFrontend reads the key and creates the frontend executor.
func connectFrontend(cfg *config.Config, timeouts *config.Timeouts) (g5k.Executor, []byte, error) {
	key, err := readPrivateKey(expandHome(cfg.SSH.PrivateKeyPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read SSH private key: %w", err)
	}
	frontend, err := newFrontend(frontendConfig(cfg, key, timeouts))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create frontend client: %w", err)
	}
	return frontend, key, nil
}

// newScheduler creates the OAR scheduler client of the configured site.
func newScheduler(cfg *config.Config, frontend g5k.Executor, timeouts *config.Timeouts) *g5k.Scheduler {
	return g5k.NewScheduler(cfg.Site, frontend,
		g5k.WithPollInterval(timeouts.WaitStartPoll),
		g5k.WithStartTimeout(timeouts.WaitStart),
		g5k.WithQueryRetries(timeouts.RetryMaxAttempts, timeouts.RetryInitialDelay))
}

// needsObjectStore reports whether the run reads or writes object storage.
func needsObjectStore(cfg *config.Config) bool {
	return s3.IsURI(cfg.Installer.Payload) || cfg.Report.S3.Enabled()
}

// buildServices wires the testbed clients of a run. The object store
// configured under report.s3 also serves s3:// payloads.
func buildServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	timeouts := config.LoadTimeouts()

	frontend, key, err := connectFrontend(cfg, timeouts)
	if err != nil {
		return nil, err
	}

	pool, err := ssh.NewPool(sshConfig(cfg, key, timeouts), cfg.SSH.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create node SSH pool: %w", err)
	}

	svc := &Services{
		Deps: provisioning.Dependencies{
			Scheduler: newScheduler(cfg, frontend, timeouts),
			Imager:    g5k.NewImager(frontend, pool, cfg.Imaging.CheckCommand),
			Remote:    pool,
			Runner:    localexec.New(),
			Metrics:   metrics.New(),
		},
	}

	if needsObjectStore(cfg) {
		store, err := newObjectStore(ctx, cfg.Report.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create object storage client: %w", err)
		}
		svc.Store = store
		svc.Deps.Downloader = store
	}

	return svc, nil
}
