// Package naming provides consistent naming functions for testbed resources.
//
// Host addresses follow the Grid'5000 pattern {node}.{site}.grid5000.fr.
// Once a kavlan overlay is attached to a reservation the same node is
// reachable as {node}-kavlan-{id}.{site}.grid5000.fr. Scratch workspaces
// are named g{ordinal}-{uuid} so that concurrently running groups never
// collide in the shared staging area.
package naming
