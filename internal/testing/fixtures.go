package testing

import (
	"fmt"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/util/naming"
)

// FleetFixture produces deterministic host addresses for one site.
type FleetFixture struct {
	Site    string
	Cluster string
}

// NewFleetFixture creates a fixture for site using the grisou cluster.
func NewFleetFixture(site string) *FleetFixture {
	return &FleetFixture{Site: site, Cluster: "grisou"}
}

// Physical returns n physical addresses, numbered from 1.
func (f *FleetFixture) Physical(n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("%s-%d%s", f.Cluster, i+1, naming.SiteSuffix(f.Site))
	}
	return out
}

// Hosts returns n hosts, with overlay addresses when overlayID is positive.
func (f *FleetFixture) Hosts(n, overlayID int) []fleet.Host {
	out := make([]fleet.Host, n)
	for i, addr := range f.Physical(n) {
		out[i] = fleet.NewHost(addr)
		if overlayID > 0 {
			overlay, err := naming.OverlayAddress(addr, f.Site, overlayID)
			if err != nil {
				panic(err)
			}
			out[i].OverlayAddress = overlay
		}
	}
	return out
}

// Group returns a group with the given ordinal holding hosts.
func (f *FleetFixture) Group(ordinal int, hosts ...fleet.Host) fleet.CloudGroup {
	return fleet.CloudGroup{Ordinal: ordinal, Hosts: hosts}
}
