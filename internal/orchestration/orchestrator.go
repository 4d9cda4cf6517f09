package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/provisioning/deploy"
	"github.com/imamik/stackfleet/internal/provisioning/install"
	"github.com/imamik/stackfleet/internal/provisioning/partition"
	"github.com/imamik/stackfleet/internal/provisioning/reservation"
	"github.com/imamik/stackfleet/internal/provisioning/verify"
)

// releaseTimeout bounds the release of a reservation at the end of a run.
const releaseTimeout = 2 * time.Minute

// ErrPartiallyFailed is returned by Result.StrictErr when at least one group
// failed verification.
var ErrPartiallyFailed = errors.New("one or more groups failed verification")

// Result is everything a run produced.
type Result struct {
	State         State                      `json:"state"`
	History       []Transition               `json:"history"`
	Reservation   fleet.ReservationContext   `json:"reservation"`
	ReservedByRun bool                       `json:"reservedByRun"`
	Released      bool                       `json:"released"`
	Deployment    fleet.DeploymentOutcome    `json:"deployment"`
	Groups        []fleet.CloudGroup         `json:"groups"`
	Installs      []fleet.InstallResult      `json:"installs,omitempty"`
	Verifications []fleet.VerificationResult `json:"verifications,omitempty"`
	StartedAt     time.Time                  `json:"startedAt"`
	Duration      time.Duration              `json:"duration"`

	// Err is the fatal error that moved the run to Failed.
	Err error `json:"-"`
}

// FailedGroups returns the verification results of the groups that failed.
func (r *Result) FailedGroups() []fleet.VerificationResult {
	var out []fleet.VerificationResult
	for _, v := range r.Verifications {
		if !v.OK() {
			out = append(out, v)
		}
	}
	return out
}

// StrictErr returns ErrPartiallyFailed when the run ended PartiallyFailed.
func (r *Result) StrictErr() error {
	if r.State == StatePartiallyFailed {
		return ErrPartiallyFailed
	}
	return nil
}

// Orchestrator runs the provisioning phases for one configuration.
type Orchestrator struct {
	config   *config.Config
	deps     provisioning.Dependencies
	pipeline *provisioning.Pipeline
}

// New creates an orchestrator.
func New(cfg *config.Config, deps provisioning.Dependencies) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		deps:     deps,
		pipeline: provisioning.NewPipeline(Phases(cfg)...),
	}
}

// Phases returns the phases run for cfg, in order. Installation is skipped in
// check-only mode.
func Phases(cfg *config.Config) []provisioning.Phase {
	phases := []provisioning.Phase{
		reservation.NewProvisioner(),
		reservation.NewOverlayProvisioner(),
		deploy.NewProvisioner(),
		partition.NewProvisioner(),
	}
	if !cfg.CheckOnly {
		phases = append(phases, install.NewProvisioner())
	}
	return append(phases, verify.NewProvisioner())
}

// Run executes the whole run. A fatal error is returned along with a result
// in the Failed state; verification failures are not errors and show up as
// the PartiallyFailed state. A job reserved by this run is released before
// Run returns unless the configuration keeps it alive.
func (o *Orchestrator) Run(ctx context.Context) (result *Result, err error) {
	log := logr.FromContextOrDiscard(ctx)

	base := o.deps.Observer
	if base == nil {
		base = provisioning.NewLogObserver(log)
	}
	machine := NewMachine(base)

	deps := o.deps
	deps.Observer = provisioning.MultiObserver{base, machine}
	pctx := provisioning.NewContext(ctx, o.config, deps)

	result = &Result{StartedAt: time.Now()}
	defer func() {
		o.release(ctx, pctx.State, result)
		o.collect(pctx.State, machine, result)
		o.deps.Metrics.RecordRunState(string(result.State))
	}()

	runErr := o.pipeline.Run(pctx)
	if runErr == nil {
		runErr = machine.Err()
	}
	if runErr != nil {
		result.Err = runErr
		if terr := machine.Transition(StateFailed); terr != nil {
			log.Error(terr, "Failed to record run failure")
		}
		return result, runErr
	}

	final := StateDone
	for _, v := range pctx.State.Verifications {
		if !v.OK() {
			final = StatePartiallyFailed
			break
		}
	}
	if err := machine.Transition(final); err != nil {
		result.Err = err
		return result, err
	}

	log.Info("Run finished", "state", final, "groups", len(pctx.State.Groups))
	return result, nil
}

func (o *Orchestrator) collect(state *provisioning.State, machine *Machine, result *Result) {
	result.State = machine.State()
	result.History = machine.History()
	result.Reservation = state.Reservation
	result.ReservedByRun = state.ReservedByRun
	result.Deployment = state.Deployment
	result.Groups = state.Groups
	result.Installs = state.Installs
	result.Verifications = state.Verifications
	result.Duration = time.Since(result.StartedAt)
}

// release deletes the job when this run reserved it. It runs even when ctx
// was cancelled.
func (o *Orchestrator) release(ctx context.Context, state *provisioning.State, result *Result) {
	if !state.ReservedByRun || o.config.Reservation.KeepAlive {
		return
	}
	log := logr.FromContextOrDiscard(ctx)
	job := state.Reservation

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := o.deps.Scheduler.Release(rctx, job.JobID, job.Site); err != nil {
		log.Error(err, "Failed to release reservation, delete it manually", "job", job.JobID,
			"command", fmt.Sprintf("oardel %d", job.JobID))
		return
	}
	result.Released = true
	log.Info("Reservation released", "job", job.JobID)
}
