package deploy

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/metrics"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/naming"
)

// Engine runs one deployment: node lookup, imaging and threshold check.
type Engine struct {
	scheduler     provisioning.Scheduler
	imager        provisioning.Imager
	image         string
	lookupOverlay bool
	metrics       *metrics.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithOverlayLookup asks the scheduler for the overlay id when the job does
// not carry one.
func WithOverlayLookup(enabled bool) Option {
	return func(e *Engine) { e.lookupOverlay = enabled }
}

// WithMetrics records deployment metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// NewEngine creates an engine deploying image.
func NewEngine(scheduler provisioning.Scheduler, imager provisioning.Imager, image string, opts ...Option) *Engine {
	e := &Engine{scheduler: scheduler, imager: imager, image: image}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deploy images the hosts of job and returns the usable ones. A retry budget
// of zero only checks hosts that are already imaged. The outcome is accepted
// when at least minNodes hosts succeeded; otherwise a
// *fleet.DeploymentBelowThresholdError lists the failed hosts.
func (e *Engine) Deploy(ctx context.Context, job fleet.ReservationContext, minNodes, retryBudget int) (fleet.DeploymentOutcome, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("job", job.JobID)

	nodes, err := e.scheduler.ListNodes(ctx, job.JobID, job.Site)
	if err != nil {
		return fleet.DeploymentOutcome{}, fmt.Errorf("failed to list nodes of job %d: %w", job.JobID, err)
	}

	if job.OverlayID == 0 && e.lookupOverlay {
		id, err := e.scheduler.OverlayID(ctx, job.JobID, job.Site)
		if err != nil {
			return fleet.DeploymentOutcome{}, fmt.Errorf("failed to resolve overlay network of job %d: %w", job.JobID, err)
		}
		job.OverlayID = id
	}

	req := fleet.ImagingRequest{
		Hosts:     nodes,
		Site:      job.Site,
		Image:     e.image,
		OverlayID: job.OverlayID,
		Retries:   retryBudget,
		CheckOnly: retryBudget == 0,
	}
	log.Info("Deploying nodes", "nodes", len(nodes), "image", req.Image, "overlay", req.OverlayID,
		"retries", req.Retries, "checkOnly", req.CheckOnly)

	start := time.Now()
	reported, _, err := e.imager.Deploy(ctx, req)
	if err != nil {
		return fleet.DeploymentOutcome{}, fmt.Errorf("imaging failed: %w", err)
	}
	succeeded, failed := normalize(nodes, reported)
	e.metrics.RecordDeployment(len(succeeded), len(failed), time.Since(start))

	if len(succeeded) < minNodes {
		return fleet.DeploymentOutcome{Failed: failed}, &fleet.DeploymentBelowThresholdError{
			FailedHosts: failed,
			Succeeded:   len(succeeded),
			Required:    minNodes,
		}
	}
	if len(failed) > 0 {
		log.Info("Some nodes failed to deploy, continuing above threshold",
			"failed", strings.Join(failed, ","), "succeeded", len(succeeded), "required", minNodes)
	}

	hosts, err := remap(succeeded, job)
	if err != nil {
		return fleet.DeploymentOutcome{}, err
	}

	log.Info("Nodes deployed", "succeeded", len(hosts), "failed", len(failed))
	return fleet.DeploymentOutcome{Succeeded: hosts, Failed: failed}, nil
}

// normalize splits the requested nodes by imaging result. A node reported as
// succeeded counts as succeeded even when it is also reported as failed, and
// every other requested node counts as failed. Reported nodes that were never
// requested are ignored.
func normalize(requested, succeeded []string) ([]string, []string) {
	ok := make(map[string]bool, len(succeeded))
	for _, h := range succeeded {
		ok[h] = true
	}

	var outOK, outFailed []string
	for _, h := range requested {
		if ok[h] {
			outOK = append(outOK, h)
		} else {
			outFailed = append(outFailed, h)
		}
	}

	slices.Sort(outOK)
	slices.Sort(outFailed)
	return slices.Compact(outOK), slices.Compact(outFailed)
}

// remap attaches overlay addresses and sorts the hosts by reachable address.
func remap(physical []string, job fleet.ReservationContext) ([]fleet.Host, error) {
	hosts := make([]fleet.Host, 0, len(physical))
	for _, addr := range physical {
		h := fleet.NewHost(addr)
		if job.HasOverlay() {
			overlay, err := naming.OverlayAddress(addr, job.Site, job.OverlayID)
			if err != nil {
				return nil, err
			}
			h.OverlayAddress = overlay
		}
		hosts = append(hosts, h)
	}

	slices.SortFunc(hosts, func(a, b fleet.Host) int {
		return strings.Compare(a.Address(), b.Address())
	})
	return hosts, nil
}
