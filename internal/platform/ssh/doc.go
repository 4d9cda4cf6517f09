// Package ssh provides an SSH client for executing commands on testbed hosts.
//
// The site frontend runs the scheduler and imaging commands, and every
// deployed node is probed during verification. Hosts are usually only
// reachable through the testbed access gateway, so connections can be
// tunnelled through one jump host. [Pool] runs the same command on many
// hosts with a bound on simultaneous sessions.
package ssh
