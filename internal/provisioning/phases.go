package provisioning

// Phase names, in run order.
const (
	PhaseReservation = "reservation"
	PhaseOverlay     = "overlay"
	PhaseDeploy      = "deploy"
	PhasePartition   = "partition"
	PhaseInstall     = "install"
	PhaseVerify      = "verify"
)
