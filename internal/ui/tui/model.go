package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/stackfleet/internal/provisioning"
	"github.com/imamik/stackfleet/internal/ui/benchmarks"
)

// PhaseStatus represents a run phase for display.
type PhaseStatus struct {
	Name      string
	Key       string
	Done      bool
	Active    bool
	Err       error
	StartedAt time.Time
	EndedAt   *time.Time
}

// GroupStatus is the install and verify progress of one group.
type GroupStatus struct {
	Ordinal     int
	ScratchID   string
	Installed   bool
	InstallErr  error
	Verified    bool
	VerifyErr   error
	Controllers string
}

const maxWarnings = 5

// Model is the Bubble Tea model for the run dashboard.
type Model struct {
	Project string
	Site    string

	// State is the last state the run machine reported.
	State  string
	Phases []PhaseStatus
	Groups []GroupStatus

	// Warnings keeps the most recent tolerated problems.
	Warnings []string

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool
}

var phaseNames = map[string]string{
	provisioning.PhaseReservation: "Reservation",
	provisioning.PhaseOverlay:     "Overlay Network",
	provisioning.PhaseDeploy:      "OS Deployment",
	provisioning.PhasePartition:   "Partition",
	provisioning.PhaseInstall:     "Installation",
	provisioning.PhaseVerify:      "Verification",
}

// NewRunModel creates a dashboard model tracking the given phase keys.
func NewRunModel(project, site string, phases []string) Model {
	m := Model{
		Project:          project,
		Site:             site,
		StartTime:        time.Now(),
		PerformanceScale: 1.0,
	}
	for _, key := range phases {
		name, ok := phaseNames[key]
		if !ok {
			name = key
		}
		m.Phases = append(m.Phases, PhaseStatus{Name: name, Key: key})
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case EventMsg:
		m.apply(msg.Event)

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		if msg.State != "" {
			m.State = msg.State
		}
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(e provisioning.Event) {
	switch e.Type {
	case provisioning.EventPhaseStarted:
		m.startPhase(e.Phase, e.Timestamp)
	case provisioning.EventPhaseCompleted:
		if p := m.phase(e.Phase); p != nil {
			m.endPhase(p, e.Timestamp)
		}
	case provisioning.EventPhaseFailed:
		if p := m.phase(e.Phase); p != nil {
			m.endPhase(p, e.Timestamp)
			p.Done = false
			p.Err = e.Err
		}
	case provisioning.EventStateChanged:
		if to := e.Fields["to"]; to != "" {
			m.State = to
		}
	case provisioning.EventGroupInstalled:
		g := m.group(e.Group)
		g.Installed = true
		g.InstallErr = e.Err
		g.ScratchID = e.Fields["scratch"]
	case provisioning.EventGroupVerified:
		g := m.group(e.Group)
		g.Verified = true
		g.VerifyErr = e.Err
		g.Controllers = formatList(e.Fields["controllers"])
	case provisioning.EventWarning:
		m.Warnings = append(m.Warnings, e.Message)
		if len(m.Warnings) > maxWarnings {
			m.Warnings = m.Warnings[len(m.Warnings)-maxWarnings:]
		}
	}
}

func (m *Model) phase(key string) *PhaseStatus {
	for i := range m.Phases {
		if m.Phases[i].Key == key {
			return &m.Phases[i]
		}
	}
	return nil
}

func (m *Model) startPhase(key string, at time.Time) {
	p := m.phase(key)
	if p == nil {
		return
	}
	// Phases run in order: everything before a started phase is done.
	for i := range m.Phases {
		if &m.Phases[i] == p {
			break
		}
		if !m.Phases[i].Done && m.Phases[i].Err == nil {
			m.endPhase(&m.Phases[i], at)
		}
	}
	p.Active = true
	p.StartedAt = at
}

func (m *Model) endPhase(p *PhaseStatus, at time.Time) {
	p.Done = true
	p.Active = false
	p.EndedAt = &at
}

// group returns the status of ordinal, adding it in ordinal order.
func (m *Model) group(ordinal int) *GroupStatus {
	for i := range m.Groups {
		if m.Groups[i].Ordinal == ordinal {
			return &m.Groups[i]
		}
	}
	idx := len(m.Groups)
	for i, g := range m.Groups {
		if g.Ordinal > ordinal {
			idx = i
			break
		}
	}
	m.Groups = append(m.Groups, GroupStatus{})
	copy(m.Groups[idx+1:], m.Groups[idx:])
	m.Groups[idx] = GroupStatus{Ordinal: ordinal}
	return &m.Groups[idx]
}

func (m *Model) activePhase() *PhaseStatus {
	for i := range m.Phases {
		if m.Phases[i].Active {
			return &m.Phases[i]
		}
	}
	return nil
}

func (m *Model) updateETA() {
	current := m.activePhase()
	if current == nil || m.Done {
		m.EstimatedRemaining = 0
		return
	}

	history := make([]benchmarks.PhaseRecord, 0, len(m.Phases))
	for _, p := range m.Phases {
		if p.StartedAt.IsZero() {
			continue
		}
		history = append(history, benchmarks.PhaseRecord{Phase: p.Key, StartedAt: p.StartedAt, EndedAt: p.EndedAt})
	}

	elapsed := time.Since(current.StartedAt)
	m.PerformanceScale = benchmarks.PerformanceScale(current.Key, elapsed, history)
	m.EstimatedRemaining = benchmarks.EstimateRemainingWithScale(current.Key, elapsed, history, m.PerformanceScale)
}

// formatList turns a fmt.Sprint rendered slice into a comma separated list.
func formatList(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	return strings.Join(strings.Fields(s), ", ")
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
