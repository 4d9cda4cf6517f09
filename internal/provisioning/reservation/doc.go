// Package reservation obtains the scheduler job a run provisions against.
//
// The Provisioner submits a new job or adopts an existing one and waits until
// it runs. The OverlayProvisioner then resolves and enables the overlay
// network reserved with the job, when one was requested.
package reservation
