package reservation

import (
	"fmt"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// OverlayProvisioner enables the overlay network reserved with the job.
type OverlayProvisioner struct{}

// NewOverlayProvisioner creates a new overlay provisioner.
func NewOverlayProvisioner() *OverlayProvisioner {
	return &OverlayProvisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *OverlayProvisioner) Name() string {
	return provisioning.PhaseOverlay
}

// Provision implements the provisioning.Phase interface.
// Without an overlay the reservation keeps OverlayID 0 and hosts are reached
// on their physical addresses.
func (p *OverlayProvisioner) Provision(ctx *provisioning.Context) error {
	log := ctx.Logger().WithValues("phase", p.Name())
	res := &ctx.State.Reservation

	if !ctx.Config.Reservation.Overlay {
		log.V(1).Info("Overlay network disabled")
		return nil
	}

	id, err := ctx.Scheduler.OverlayID(ctx, res.JobID, res.Site)
	if err != nil {
		return fmt.Errorf("failed to resolve overlay network of job %d: %w", res.JobID, err)
	}
	if id <= 0 {
		return fmt.Errorf("job %d has no overlay network (id %d)", res.JobID, id)
	}

	if err := ctx.Scheduler.EnableOverlay(ctx, res.JobID, res.Site); err != nil {
		return fmt.Errorf("failed to enable overlay network %d: %w", id, err)
	}

	res.OverlayID = id
	log.Info("Overlay network enabled", "job", res.JobID, "overlay", id)
	return nil
}
