package fleet

// ReservationRequest describes a new scheduler job.
type ReservationRequest struct {
	Name     string
	Site     string
	Cluster  string // empty means any cluster of the site
	Switch   string // empty means any switch
	Nodes    int
	Walltime string // HH:MM:SS

	// Overlay asks for one kavlan overlay network along with the nodes.
	Overlay bool
}

// ImagingRequest is handed to the imaging collaborator.
type ImagingRequest struct {
	Hosts     []string
	Site      string
	Image     string
	OverlayID int // 0 deploys on the default network

	// Retries is the number of additional attempts for hosts that failed
	// the previous attempt. Zero with CheckOnly never re-images.
	Retries int

	// CheckOnly probes the hosts for an already deployed image instead of
	// imaging them.
	CheckOnly bool
}
