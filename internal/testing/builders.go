package testing

import (
	"time"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/util/ptr"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder with sensible defaults: a new
// reservation with an overlay network on nancy, imaging with two retries and
// two groups of three nodes.
func NewConfigBuilder() *ConfigBuilder {
	cfg := config.New()
	cfg.Site = "nancy"
	cfg.Cluster = "grisou"
	cfg.Installer.Payload = "/opt/installer"
	cfg.Installer.LaunchDelay = ptr.To(time.Millisecond)
	cfg.SSH.PrivateKeyPath = "/home/test/.ssh/id_rsa"
	cfg.Groups.NodesPerGroup = 3
	cfg.Groups.Count = 2
	return &ConfigBuilder{cfg: *cfg}
}

// WithSite sets the testbed site.
func (b *ConfigBuilder) WithSite(site string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Site = site
	return nb
}

// WithGroups sets the group size and the number of groups.
func (b *ConfigBuilder) WithGroups(nodesPerGroup, count int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Groups.NodesPerGroup = nodesPerGroup
	nb.cfg.Groups.Count = count
	return nb
}

// WithMinNodes sets the deployment success threshold.
func (b *ConfigBuilder) WithMinNodes(n int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Groups.MinNodes = n
	return nb
}

// WithRemainder sets the remainder policy.
func (b *ConfigBuilder) WithRemainder(policy config.RemainderPolicy) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Groups.Remainder = policy
	return nb
}

// WithExistingJob disables reservation and adopts jobID.
func (b *ConfigBuilder) WithExistingJob(jobID int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Reservation.Enabled = false
	nb.cfg.Reservation.JobID = jobID
	return nb
}

// WithOverlay toggles the overlay network.
func (b *ConfigBuilder) WithOverlay(enabled bool) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Reservation.Overlay = enabled
	return nb
}

// WithKeepAlive keeps the reservation after the run.
func (b *ConfigBuilder) WithKeepAlive(keep bool) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Reservation.KeepAlive = keep
	return nb
}

// WithImaging sets whether nodes are re-imaged and the retry budget.
func (b *ConfigBuilder) WithImaging(enabled bool, retries int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Imaging.Enabled = enabled
	nb.cfg.Imaging.Retries = retries
	return nb
}

// WithCheckOnly toggles check-only mode.
func (b *ConfigBuilder) WithCheckOnly(checkOnly bool) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.CheckOnly = checkOnly
	return nb
}

// WithPayload sets the installer payload and staging directory.
func (b *ConfigBuilder) WithPayload(payload, stagingDir string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Installer.Payload = payload
	nb.cfg.Installer.StagingDir = stagingDir
	return nb
}

// WithProbe sets the controller probe command.
func (b *ConfigBuilder) WithProbe(command string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Verify.ProbeCommand = command
	return nb
}

// Build returns the final configuration.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.Installer.RequiredTools = append([]string(nil), b.cfg.Installer.RequiredTools...)
	return &ConfigBuilder{cfg: cfg}
}
