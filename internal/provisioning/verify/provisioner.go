package verify

import (
	"github.com/imamik/stackfleet/internal/provisioning"
)

// Provisioner is the verification phase.
type Provisioner struct{}

// NewProvisioner creates a new verification provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return provisioning.PhaseVerify
}

// Provision implements the provisioning.Phase interface.
// Failed groups are recorded in the state; the phase itself only fails when
// the run is cancelled.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	verifier := NewVerifier(ctx.Remote, ctx.Config.Verify.ProbeCommand,
		WithObserver(ctx.Observer),
		WithMetrics(ctx.Metrics),
	)

	results, err := verifier.VerifyAll(ctx.PhaseContext(p.Name()), ctx.State.Groups)
	ctx.State.Verifications = results
	if err != nil {
		ctx.Logger().V(1).Info("Some groups failed verification", "error", err.Error())
	}
	return ctx.Err()
}
