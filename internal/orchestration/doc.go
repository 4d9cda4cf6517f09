// Package orchestration drives a whole provisioning run.
//
// The Orchestrator delegates the work to the phases in the
// internal/provisioning subpackages and tracks the run through a state
// machine fed by their events.
//
// # Workflow
//
// The phases run in this order:
//  1. Reservation - submit a scheduler job or adopt an existing one
//  2. Overlay - resolve and enable the overlay network
//  3. Deploy - image the nodes, apply the success threshold
//  4. Partition - split the deployed hosts into groups
//  5. Install - run the installer payload per group (skipped when only checking)
//  6. Verify - discover the controllers of every group
//
// # States
//
//	Pending → Reserved → NetworkEnabled → Deploying → Deployed → Partitioned
//	        → Installing → Verifying → Done | PartiallyFailed
//
// Any fatal error moves the run to Failed. Verification failures are never
// fatal: they end the run in PartiallyFailed.
//
// # Usage
//
//	orch := orchestration.New(cfg, deps)
//	result, err := orch.Run(ctx)
package orchestration
