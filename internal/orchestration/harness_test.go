package orchestration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/platform/ssh"
	"github.com/imamik/stackfleet/internal/provisioning"
	sftest "github.com/imamik/stackfleet/internal/testing"
	"github.com/imamik/stackfleet/internal/util/naming"
	"github.com/imamik/stackfleet/internal/util/ptr"
)

const (
	testJobID     = 5150
	testOverlayID = 4
)

// harness wires mocks for a full run against nancy.
type harness struct {
	cfg       *config.Config
	scheduler *sftest.MockScheduler
	imager    *sftest.MockImager
	runner    *sftest.MockCommandRunner
	observer  *provisioning.RecordingObserver
	metrics   *metrics.Recorder
	fleet     *sftest.FleetFixture

	mu          sync.Mutex
	controllers map[string]string // address -> probe stdout
	unreachable map[string]bool
	probed      []string
}

// newHarness builds a configuration for groups of groupSize with a payload
// directory under dir.
func newHarness(dir string, groupSize, groupCount int) *harness {
	payload := filepath.Join(dir, "payload")
	if err := os.MkdirAll(payload, 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(filepath.Join(payload, "install.sh"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		panic(err)
	}

	cfg := sftest.NewConfigBuilder().
		WithGroups(groupSize, groupCount).
		WithPayload(payload, filepath.Join(dir, "staging")).
		Build()
	cfg.Installer.Entrypoint = "install.sh"
	cfg.Installer.LaunchDelay = ptr.To(time.Duration(0))
	cfg.Installer.RequiredTools = []string{"sh"}

	return &harness{
		cfg:         cfg,
		scheduler:   &sftest.MockScheduler{},
		imager:      &sftest.MockImager{},
		runner:      &sftest.MockCommandRunner{},
		observer:    &provisioning.RecordingObserver{},
		metrics:     metrics.New(),
		fleet:       sftest.NewFleetFixture("nancy"),
		controllers: map[string]string{},
		unreachable: map[string]bool{},
	}
}

// expectReservation sets up a reservation made by the run, with an overlay.
func (h *harness) expectReservation() {
	h.scheduler.On("Reserve", mock.Anything, mock.Anything).Return(testJobID, nil)
	h.scheduler.On("WaitStart", mock.Anything, testJobID).Return(nil)
	h.scheduler.On("OverlayID", mock.Anything, testJobID, "nancy").Return(testOverlayID, nil)
	h.scheduler.On("EnableOverlay", mock.Anything, testJobID, "nancy").Return(nil)
	h.scheduler.On("Release", mock.Anything, testJobID, "nancy").Return(nil)
}

// expectDeployment lists n nodes and images the first ok of them.
func (h *harness) expectDeployment(n, ok int) []string {
	nodes := h.fleet.Physical(n)
	h.scheduler.On("ListNodes", mock.Anything, testJobID, "nancy").Return(nodes, nil)
	h.imager.On("Deploy", mock.Anything, mock.Anything).Return(nodes[:ok], nodes[ok:], nil)
	return nodes
}

func (h *harness) expectInstalls() {
	h.runner.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

// overlay returns the reachable address of a physical node.
func (h *harness) overlay(physical string) string {
	addr, err := naming.OverlayAddress(physical, "nancy", testOverlayID)
	if err != nil {
		panic(err)
	}
	return addr
}

// answer makes the probe on physical print stdout.
func (h *harness) answer(physical, stdout string) {
	h.controllers[h.overlay(physical)] = stdout
}

func (h *harness) unreach(physical string) {
	h.unreachable[h.overlay(physical)] = true
}

func (h *harness) remote() provisioning.RemoteRunner {
	return &sftest.MockRemoteRunner{RunFunc: func(_ context.Context, _ string, host string) ssh.Result {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.probed = append(h.probed, host)
		if h.unreachable[host] {
			return ssh.Result{Err: &os.SyscallError{Syscall: "connect", Err: os.ErrDeadlineExceeded}}
		}
		return ssh.Result{Stdout: h.controllers[host]}
	}}
}

func (h *harness) orchestrator() *Orchestrator {
	return New(h.cfg, provisioning.Dependencies{
		Scheduler: h.scheduler,
		Imager:    h.imager,
		Remote:    h.remote(),
		Runner:    h.runner,
		Observer:  h.observer,
		Metrics:   h.metrics,
	})
}

func (h *harness) probedHosts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.probed...)
}

func statePath(r *Result) []State {
	out := make([]State, len(r.History))
	for i, tr := range r.History {
		out[i] = tr.To
	}
	return out
}
