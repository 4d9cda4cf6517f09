package fleet

import (
	"fmt"
	"strings"
)

// Host is a testbed node. OverlayAddress stays empty until the reservation
// has an overlay network attached.
type Host struct {
	PhysicalAddress string `json:"physicalAddress"`
	OverlayAddress  string `json:"overlayAddress,omitempty"`
}

// NewHost returns a host known only by its physical address.
func NewHost(physical string) Host {
	return Host{PhysicalAddress: physical}
}

// Address returns the address other hosts and the operator reach this host on.
func (h Host) Address() string {
	if h.OverlayAddress != "" {
		return h.OverlayAddress
	}
	return h.PhysicalAddress
}

func (h Host) String() string {
	return h.Address()
}

// ReservationContext identifies the scheduler job backing a run.
type ReservationContext struct {
	JobID     int    `json:"jobId"`
	Site      string `json:"site"`
	OverlayID int    `json:"overlayId,omitempty"` // 0 means no overlay network
}

// HasOverlay reports whether an overlay network id is known.
func (r ReservationContext) HasOverlay() bool {
	return r.OverlayID > 0
}

// DeploymentOutcome is the result of one imaging attempt sequence.
// Succeeded and Failed never share a physical address.
type DeploymentOutcome struct {
	Succeeded []Host   `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"`
}

// CloudGroup is a subset of deployed hosts receiving one independent
// installation of the software stack.
type CloudGroup struct {
	Ordinal int    `json:"ordinal"`
	Hosts   []Host `json:"hosts"`
}

// Name returns a short label used in logs and scratch ids.
func (g CloudGroup) Name() string {
	return fmt.Sprintf("group-%d", g.Ordinal)
}

// Addresses returns the reachable address of every host, in group order.
func (g CloudGroup) Addresses() []string {
	out := make([]string, len(g.Hosts))
	for i, h := range g.Hosts {
		out[i] = h.Address()
	}
	return out
}

// InstallResult is the outcome of one group's installation task.
type InstallResult struct {
	Group     CloudGroup `json:"group"`
	ScratchID string     `json:"scratchId"`
	Err       error      `json:"-"`
}

// OK reports whether the installer finished without error.
func (r InstallResult) OK() bool {
	return r.Err == nil
}

// VerificationResult is the controller discovery outcome of one group.
type VerificationResult struct {
	Group       CloudGroup `json:"group"`
	Controllers []string   `json:"controllers"`
	FailedHosts []string   `json:"failedHosts,omitempty"`
	Err         error      `json:"-"`
}

// OK reports whether every host of the group answered the probe.
func (r VerificationResult) OK() bool {
	return r.Err == nil
}

func (r VerificationResult) String() string {
	if r.OK() {
		return fmt.Sprintf("%s: controllers [%s]", r.Group.Name(), strings.Join(r.Controllers, ", "))
	}
	return fmt.Sprintf("%s: failed hosts [%s]", r.Group.Name(), strings.Join(r.FailedHosts, ", "))
}
