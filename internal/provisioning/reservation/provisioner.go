package reservation

import (
	"fmt"
	"strconv"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/naming"
)

// Provisioner reserves nodes or adopts an existing job.
type Provisioner struct{}

// NewProvisioner creates a new reservation provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return provisioning.PhaseReservation
}

// Provision implements the provisioning.Phase interface.
// The reservation is stored in the state before waiting for the job to start
// so that a failed wait can still release it.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config
	log := ctx.Logger().WithValues("phase", p.Name())
	pctx := ctx.PhaseContext(p.Name())

	jobID := cfg.Reservation.JobID
	if cfg.Reservation.Enabled {
		req := fleet.ReservationRequest{
			Name:     naming.JobName(cfg.Project),
			Site:     cfg.Site,
			Cluster:  cfg.Cluster,
			Switch:   cfg.Switch,
			Nodes:    cfg.RequestedNodes(),
			Walltime: cfg.Walltime,
			Overlay:  cfg.Reservation.Overlay,
		}
		log.Info("Submitting reservation", "site", req.Site, "cluster", req.Cluster, "nodes", req.Nodes, "walltime", req.Walltime)

		id, err := ctx.Scheduler.Reserve(pctx, req)
		if err != nil {
			return fmt.Errorf("failed to reserve nodes: %w", err)
		}
		jobID = id
		ctx.State.ReservedByRun = true
	} else if jobID <= 0 {
		return fleet.ErrMissingJobID
	}

	ctx.State.Reservation = fleet.ReservationContext{JobID: jobID, Site: cfg.Site}
	log.Info("Waiting for job to start", "job", jobID, "reservedByRun", ctx.State.ReservedByRun)

	if err := ctx.Scheduler.WaitStart(pctx, jobID); err != nil {
		return fmt.Errorf("job %d did not start: %w", jobID, err)
	}

	if !ctx.State.ReservedByRun {
		provisioning.LogWarning(ctx.Observer, p.Name(), "Reusing existing job, it will not be released",
			map[string]string{"job": strconv.Itoa(jobID)})
	}
	return nil
}
