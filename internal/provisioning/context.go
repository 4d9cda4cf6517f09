package provisioning

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/metrics"
)

// State holds the shared results of provisioning phases.
// It is progressively populated as each phase completes and is passed
// to subsequent phases that need earlier results.
type State struct {
	// Reservation results (populated by the reservation phases)
	Reservation   fleet.ReservationContext
	ReservedByRun bool // the job was submitted by this run

	// Deployment results (populated by the deploy phase)
	Deployment fleet.DeploymentOutcome

	// Partition results
	Groups []fleet.CloudGroup

	// Installation and verification results, one per group
	Installs      []fleet.InstallResult
	Verifications []fleet.VerificationResult
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{}
}

// Dependencies are the collaborators a run talks to.
type Dependencies struct {
	Scheduler  Scheduler
	Imager     Imager
	Remote     RemoteRunner
	Runner     CommandRunner
	Downloader Downloader // nil unless payloads come from object storage
	Observer   Observer   // nil means log-only
	Metrics    *metrics.Recorder
}

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	Config     *config.Config
	State      *State
	Scheduler  Scheduler
	Imager     Imager
	Remote     RemoteRunner
	Runner     CommandRunner
	Downloader Downloader
	Observer   Observer
	Metrics    *metrics.Recorder
}

// NewContext creates a new provisioning context.
func NewContext(ctx context.Context, cfg *config.Config, deps Dependencies) *Context {
	observer := deps.Observer
	if observer == nil {
		observer = NewLogObserver(logr.FromContextOrDiscard(ctx))
	}
	return &Context{
		Context:    ctx,
		Config:     cfg,
		State:      NewState(),
		Scheduler:  deps.Scheduler,
		Imager:     deps.Imager,
		Remote:     deps.Remote,
		Runner:     deps.Runner,
		Downloader: deps.Downloader,
		Observer:   observer,
		Metrics:    deps.Metrics,
	}
}

// Logger returns the logger carried by the context.
func (c *Context) Logger() logr.Logger {
	return logr.FromContextOrDiscard(c.Context)
}

// PhaseContext returns the underlying context with a logger tagged by phase.
func (c *Context) PhaseContext(phase string) context.Context {
	return logr.NewContext(c.Context, c.Logger().WithValues("phase", phase))
}
