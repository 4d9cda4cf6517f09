package partition

import (
	"strings"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// Provisioner is the partition phase.
type Provisioner struct{}

// NewProvisioner creates a new partition provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return provisioning.PhasePartition
}

// Provision implements the provisioning.Phase interface.
// Groups are formed from every deployed host; the configured group count
// only sizes the reservation.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	log := ctx.Logger().WithValues("phase", p.Name())
	hosts := ctx.State.Deployment.Succeeded
	size := ctx.Config.Groups.NodesPerGroup

	groups, err := Split(hosts, size, ctx.Config.Groups.Remainder)
	if err != nil {
		return err
	}

	used := 0
	for _, g := range groups {
		used += len(g.Hosts)
		log.Info("Group formed", "group", g.Ordinal, "hosts", strings.Join(g.Addresses(), ","))
	}
	if dropped := hosts[used:]; len(dropped) > 0 {
		addrs := make([]string, len(dropped))
		for i, h := range dropped {
			addrs[i] = h.Address()
		}
		provisioning.LogWarning(ctx.Observer, p.Name(), "Hosts left out of every group",
			map[string]string{"hosts": strings.Join(addrs, ",")})
	}
	if len(groups) != ctx.Config.Groups.Count {
		log.Info("Group count differs from the requested count", "groups", len(groups), "requested", ctx.Config.Groups.Count)
	}

	ctx.State.Groups = groups
	ctx.Metrics.RecordGroups(len(groups))
	return nil
}
