// Package tui provides a Bubble Tea-based terminal dashboard for runs.
package tui

import "github.com/imamik/stackfleet/internal/provisioning"

// EventMsg carries one provisioning event into the dashboard.
type EventMsg struct {
	Event provisioning.Event
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the run is over.
type DoneMsg struct {
	State string
}
