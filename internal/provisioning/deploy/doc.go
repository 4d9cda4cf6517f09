// Package deploy images the nodes of a reservation and produces the sorted
// list of usable hosts.
//
// The Engine drives the imaging collaborator with a retry budget, applies the
// success threshold and remaps every usable host onto the overlay network.
// Hosts are returned sorted by reachable address so that two runs against the
// same reservation partition the fleet identically.
package deploy
