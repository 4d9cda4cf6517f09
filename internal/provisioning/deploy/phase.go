package deploy

import (
	"strings"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// Provisioner is the deployment phase.
type Provisioner struct{}

// NewProvisioner creates a new deployment provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return provisioning.PhaseDeploy
}

// Provision implements the provisioning.Phase interface.
// The outcome is stored even on failure so the failing hosts can be reported.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config
	engine := NewEngine(ctx.Scheduler, ctx.Imager, cfg.Image,
		WithOverlayLookup(cfg.Reservation.Overlay),
		WithMetrics(ctx.Metrics),
	)

	outcome, err := engine.Deploy(ctx.PhaseContext(p.Name()), ctx.State.Reservation, cfg.RequiredNodes(), cfg.ImagingRetries())
	ctx.State.Deployment = outcome
	if err != nil {
		return err
	}

	if len(outcome.Failed) > 0 {
		provisioning.LogWarning(ctx.Observer, p.Name(), "Nodes failed to deploy",
			map[string]string{"failed": strings.Join(outcome.Failed, ",")})
	}
	return nil
}
