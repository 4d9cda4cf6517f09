package provisioning

import (
	"context"
	"io"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/platform/ssh"
)

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the short name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// Scheduler reserves and inspects testbed jobs.
// Implemented by internal/platform/g5k.Scheduler.
type Scheduler interface {
	// Reserve submits a new job and returns its id.
	Reserve(ctx context.Context, req fleet.ReservationRequest) (int, error)

	// WaitStart blocks until the job runs.
	WaitStart(ctx context.Context, jobID int) error

	// ListNodes returns the physical addresses assigned to the job.
	ListNodes(ctx context.Context, jobID int, site string) ([]string, error)

	// OverlayID returns the overlay network id reserved with the job.
	OverlayID(ctx context.Context, jobID int, site string) (int, error)

	// EnableOverlay activates the overlay network of the job.
	EnableOverlay(ctx context.Context, jobID int, site string) error

	// Release deletes the job.
	Release(ctx context.Context, jobID int, site string) error
}

// Imager images hosts with an OS environment, or checks them.
// Implemented by internal/platform/g5k.Imager.
type Imager interface {
	// Deploy returns the hosts imaged (or checked) successfully and those
	// that were not.
	Deploy(ctx context.Context, req fleet.ImagingRequest) (succeeded, failed []string, err error)
}

// RemoteRunner runs one command on many hosts concurrently.
// Implemented by internal/platform/ssh.Pool.
type RemoteRunner interface {
	Run(ctx context.Context, command string, hosts []string) []ssh.Result
}

// CommandRunner runs a local command, streaming its output to the logger
// carried by ctx. Implemented by internal/platform/localexec.Runner.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// Downloader fetches objects from object storage.
// Implemented by internal/platform/s3.Client.
type Downloader interface {
	Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error)
}
