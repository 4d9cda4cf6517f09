// Package fleet defines the data model shared by every provisioning phase:
// hosts, reservations, deployment outcomes, cloud groups and the per-group
// installation and verification results, together with the error taxonomy
// of a run.
package fleet
