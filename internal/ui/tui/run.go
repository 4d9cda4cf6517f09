package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// programObserver forwards provisioning events to a running program.
type programObserver struct {
	p *tea.Program
}

func (o programObserver) Event(e provisioning.Event) {
	o.p.Send(EventMsg{Event: e})
}

// RunDashboard wraps a run with a Bubble Tea dashboard. work receives an
// observer feeding the dashboard and returns the final state name.
func RunDashboard(
	ctx context.Context,
	project, site string,
	phases []string,
	work func(ctx context.Context, observer provisioning.Observer) (string, error),
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewRunModel(project, site, phases)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Run the work in background goroutine
	errCh := make(chan error, 1)
	go func() {
		state, err := work(ctx, programObserver{p: p})
		errCh <- err
		if err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{State: state})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Quitting the dashboard early cancels the run.
	cancel()
	workErr := <-errCh
	if fm, ok := finalModel.(Model); ok && fm.Err != nil {
		return fm.Err
	}
	return workErr
}
