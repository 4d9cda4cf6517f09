// Package provisioning provides shared types, interfaces, and the phase
// runner for provisioning a testbed fleet.
//
// # Subpackages
//
//   - reservation/: scheduler job submission or reuse, overlay network
//   - deploy/: imaging with a retry budget and a success threshold
//   - partition/: splitting the deployed fleet into groups
//   - install/: staggered per-group installation in scratch workspaces
//   - verify/: concurrent controller discovery per group
//
// # Core Types
//
// Context carries configuration, state, the external collaborators, the
// observer and the metrics recorder. Phase defines a provisioning step with
// Name() and Provision() methods. State accumulates the output of each
// phase; every phase reads only what the previous ones produced.
package provisioning
