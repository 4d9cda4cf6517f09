package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/async"
	"github.com/imamik/stackfleet/internal/util/naming"
)

const (
	hostsFileName  = "hosts"
	payloadDirName = "payload"
)

// Environment variables handed to the installer.
const (
	EnvGroup     = "STACKFLEET_GROUP"
	EnvHostsFile = "STACKFLEET_HOSTS_FILE"
	EnvScratchID = "STACKFLEET_SCRATCH_ID"
)

// Installer runs the payload against every group.
type Installer struct {
	runner      provisioning.CommandRunner
	payload     *Payload
	stagingDir  string
	launchDelay time.Duration
	observer    provisioning.Observer
	metrics     *metrics.Recorder
	newScratch  func(ordinal int) (string, error)
}

// Option configures an Installer.
type Option func(*Installer)

// WithObserver reports one event per finished group to o.
func WithObserver(o provisioning.Observer) Option {
	return func(i *Installer) { i.observer = o }
}

// WithMetrics records installation metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(i *Installer) { i.metrics = r }
}

// NewInstaller creates an installer staging workspaces under stagingDir and
// spacing group launches by launchDelay.
func NewInstaller(runner provisioning.CommandRunner, payload *Payload, stagingDir string, launchDelay time.Duration, opts ...Option) *Installer {
	i := &Installer{
		runner:      runner,
		payload:     payload,
		stagingDir:  stagingDir,
		launchDelay: launchDelay,
		newScratch:  naming.NewScratchWorkspace,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallAll installs every group and returns one result per group, in group
// order. One group failing never stops the others.
func (i *Installer) InstallAll(ctx context.Context, groups []fleet.CloudGroup) []fleet.InstallResult {
	results := make([]fleet.InstallResult, len(groups))
	tasks := make([]async.Task, len(groups))

	for idx, group := range groups {
		results[idx].Group = group
		tasks[idx] = async.Task{
			Name: group.Name(),
			Func: func(ctx context.Context) error {
				scratch, err := i.Install(ctx, group)
				results[idx].ScratchID = scratch
				return err
			},
		}
	}

	for idx, res := range async.RunStaggered(ctx, tasks, i.launchDelay) {
		results[idx].Err = res.Err
	}
	return results
}

// Install runs the payload for one group inside a fresh scratch workspace and
// returns the workspace id.
func (i *Installer) Install(ctx context.Context, group fleet.CloudGroup) (scratchID string, err error) {
	start := time.Now()
	log := logr.FromContextOrDiscard(ctx).WithValues("group", group.Ordinal)

	defer func() {
		i.metrics.RecordInstall(err == nil, time.Since(start))
		if i.observer != nil {
			provisioning.LogGroupInstalled(i.observer, group.Ordinal, scratchID, err)
		}
	}()

	scratchID, err = i.newScratch(group.Ordinal)
	if err != nil {
		return "", err
	}
	log = log.WithValues("scratch", scratchID)

	workspace := filepath.Join(i.stagingDir, scratchID)
	if err := os.MkdirAll(i.stagingDir, 0o755); err != nil {
		return scratchID, fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := os.Mkdir(workspace, 0o700); err != nil {
		return scratchID, fmt.Errorf("failed to create scratch workspace: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			log.Error(rmErr, "Failed to remove scratch workspace", "path", workspace)
		}
	}()

	hostsFile := filepath.Join(workspace, hostsFileName)
	content := strings.Join(group.Addresses(), "\n") + "\n"
	if err := os.WriteFile(hostsFile, []byte(content), 0o600); err != nil {
		return scratchID, fmt.Errorf("failed to write hosts file: %w", err)
	}

	payloadDir := filepath.Join(workspace, payloadDirName)
	if err := i.copyPayload(payloadDir); err != nil {
		return scratchID, fmt.Errorf("failed to copy payload: %w", err)
	}

	entrypoint := filepath.Join(payloadDir, filepath.FromSlash(i.payload.Entrypoint))
	env := []string{
		EnvGroup + "=" + strconv.Itoa(group.Ordinal),
		EnvHostsFile + "=" + hostsFile,
		EnvScratchID + "=" + scratchID,
	}

	log.Info("Installing group", "hosts", len(group.Hosts))
	if err := i.runner.Run(logr.NewContext(ctx, log), payloadDir, env, entrypoint, hostsFile); err != nil {
		return scratchID, fmt.Errorf("installer failed for %s: %w", group.Name(), err)
	}

	log.Info("Group installation finished", "duration", time.Since(start).Round(time.Second))
	return scratchID, nil
}

// copyPayload makes a private copy of the payload in dst. The source is
// shared by every group and never modified.
func (i *Installer) copyPayload(dst string) error {
	if i.payload.IsDir() {
		return os.CopyFS(dst, os.DirFS(i.payload.Path))
	}

	if err := os.Mkdir(dst, 0o755); err != nil {
		return err
	}
	info, err := os.Stat(i.payload.Path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(i.payload.Path)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, filepath.Base(i.payload.Path)), data, info.Mode().Perm()|0o100)
}
