package install

import (
	"errors"
	"path/filepath"

	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/util/prerequisites"
)

// Provisioner is the installation phase.
type Provisioner struct{}

// NewProvisioner creates a new installation provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return provisioning.PhaseInstall
}

// Provision implements the provisioning.Phase interface.
// Group failures are stored in the state and never fail the phase; only a
// payload that cannot be used at all does.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config.Installer
	pctx := ctx.PhaseContext(p.Name())

	if res := prerequisites.Check(prerequisites.InstallerTools(cfg.RequiredTools)); res.HasErrors() {
		return res.Error()
	}

	payload, err := ResolvePayload(pctx, cfg.Payload, cfg.Entrypoint, filepath.Join(cfg.StagingDir, "cache"), ctx.Downloader)
	if err != nil {
		return err
	}

	installer := NewInstaller(ctx.Runner, payload, cfg.StagingDir, cfg.Stagger(),
		WithObserver(ctx.Observer),
		WithMetrics(ctx.Metrics),
	)
	ctx.State.Installs = installer.InstallAll(pctx, ctx.State.Groups)

	var failed []error
	for _, r := range ctx.State.Installs {
		if !r.OK() {
			failed = append(failed, r.Err)
		}
	}
	if len(failed) > 0 {
		ctx.Logger().Error(errors.Join(failed...), "Group installations failed, verification will report them",
			"failed", len(failed), "groups", len(ctx.State.Installs))
	}
	return nil
}
