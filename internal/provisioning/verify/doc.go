// Package verify discovers the controllers of every group.
//
// A probe command runs on every host of a group. Hosts that answer name the
// controller they point at; hosts that cannot be probed make the group fail.
// Groups are verified independently and concurrently.
package verify
