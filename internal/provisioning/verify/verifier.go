package verify

import (
	"context"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/platform/ssh"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/async"
)

// Verifier runs the controller probe on groups of hosts.
type Verifier struct {
	remote   provisioning.RemoteRunner
	probe    string
	observer provisioning.Observer
	metrics  *metrics.Recorder
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithObserver reports one event per verified group to o.
func WithObserver(o provisioning.Observer) Option {
	return func(v *Verifier) { v.observer = o }
}

// WithMetrics records verification metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(v *Verifier) { v.metrics = r }
}

// NewVerifier creates a verifier running probe through remote.
func NewVerifier(remote provisioning.RemoteRunner, probe string, opts ...Option) *Verifier {
	v := &Verifier{remote: remote, probe: probe}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify probes every host of group. A host exiting 0 contributes the first
// non-empty line of its output as controller id, or nothing when the output
// is empty. A host that exits non-zero or cannot be reached is failed, and
// any failed host makes the result carry a *fleet.ControllerDiscoveryError.
func (v *Verifier) Verify(ctx context.Context, group fleet.CloudGroup) fleet.VerificationResult {
	log := logr.FromContextOrDiscard(ctx).WithValues("group", group.Ordinal)
	result := fleet.VerificationResult{Group: group}

	hosts := group.Addresses()
	byHost := make(map[string]ssh.Result, len(hosts))
	for _, r := range v.remote.Run(ctx, v.probe, hosts) {
		byHost[r.Host] = r
	}

	controllers := make([]string, 0, len(hosts))
	for i, addr := range hosts {
		r, ok := byHost[addr]
		switch {
		case !ok:
			log.Info("Probe returned no result", "host", addr)
			result.FailedHosts = append(result.FailedHosts, group.Hosts[i].PhysicalAddress)
		case !r.OK():
			log.Info("Probe failed", "host", addr, "exitStatus", r.ExitStatus, "error", errString(r.Err))
			result.FailedHosts = append(result.FailedHosts, group.Hosts[i].PhysicalAddress)
		default:
			if id := controllerID(r.Stdout); id != "" {
				controllers = append(controllers, id)
			}
		}
	}

	slices.Sort(controllers)
	result.Controllers = slices.Compact(controllers)

	if len(result.FailedHosts) > 0 {
		result.Err = &fleet.ControllerDiscoveryError{Group: group.Ordinal, FailedHosts: result.FailedHosts}
		log.Error(result.Err, "Group verification failed")
	} else {
		log.Info("Group verified", "controllers", strings.Join(result.Controllers, ","))
	}

	v.metrics.RecordVerification(group.Ordinal, result.OK(), len(result.Controllers), len(result.FailedHosts))
	if v.observer != nil {
		provisioning.LogGroupVerified(v.observer, group.Ordinal, result.Controllers, result.Err)
	}
	return result
}

// VerifyAll verifies every group concurrently and returns the results in
// group order, along with the errors of the failed groups joined together.
// A failing group never affects the others.
func (v *Verifier) VerifyAll(ctx context.Context, groups []fleet.CloudGroup) ([]fleet.VerificationResult, error) {
	results := make([]fleet.VerificationResult, len(groups))
	tasks := make([]async.Task, len(groups))
	for i, g := range groups {
		tasks[i] = async.Task{
			Name: g.Name(),
			Func: func(ctx context.Context) error {
				results[i] = v.Verify(ctx, g)
				return results[i].Err
			},
		}
	}

	err := async.RunParallel(ctx, tasks)
	return results, err
}

func controllerID(stdout string) string {
	for line := range strings.Lines(stdout) {
		if id := strings.TrimSpace(line); id != "" {
			return id
		}
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
