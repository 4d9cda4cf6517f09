package provisioning

import (
	"fmt"
	"time"
)

// Pipeline is an ordered list of phases.
type Pipeline struct {
	Phases []Phase
}

// NewPipeline creates a pipeline running phases in the given order.
func NewPipeline(phases ...Phase) *Pipeline {
	return &Pipeline{Phases: phases}
}

// Run executes the pipeline phases sequentially.
func (p *Pipeline) Run(ctx *Context) error {
	return RunPhases(ctx, p.Phases)
}

// RunPhases executes all provisioning phases sequentially, stopping at the
// first error. Every phase start, completion and failure is reported to the
// observer and its duration recorded.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()
	log := ctx.Logger()
	log.V(1).Info("Starting provisioning", "phases", len(phases))

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s phase not started: %w", phase.Name(), err)
		}

		phaseStart := time.Now()
		LogPhaseStart(ctx.Observer, phase.Name())

		err := phase.Provision(ctx)
		duration := time.Since(phaseStart)
		ctx.Metrics.RecordPhase(phase.Name(), err, duration)

		if err != nil {
			LogPhaseFailed(ctx.Observer, phase.Name(), err)
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}

		LogPhaseComplete(ctx.Observer, phase.Name(), duration)
	}

	log.V(1).Info("Provisioning completed", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
