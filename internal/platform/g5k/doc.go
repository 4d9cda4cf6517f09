// Package g5k drives the testbed services through their command-line front
// ends on the site frontend.
//
// [Scheduler] submits, inspects and deletes OAR jobs and manages the kavlan
// overlay network attached to them. [Imager] deploys an environment onto
// reserved nodes with kadeploy3, retrying hosts that failed, or only checks
// that nodes already run the expected environment.
package g5k
