// Package install runs the installer payload once per group.
//
// Every group gets its own scratch workspace under the staging directory,
// named g<ordinal>-<uuid>, holding a hosts file and a private copy of the
// payload. Workspaces are removed when the task ends, whatever its outcome.
// Tasks start one after another with a fixed delay and InstallAll returns
// only when all of them have finished.
package install
