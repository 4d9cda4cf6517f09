package orchestration

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/imamik/stackfleet/internal/provisioning"
)

// State is the position of a run in its lifecycle.
type State string

// Run states.
const (
	StatePending         State = "Pending"
	StateReserved        State = "Reserved"
	StateNetworkEnabled  State = "NetworkEnabled"
	StateDeploying       State = "Deploying"
	StateDeployed        State = "Deployed"
	StatePartitioned     State = "Partitioned"
	StateInstalling      State = "Installing"
	StateVerifying       State = "Verifying"
	StateDone            State = "Done"
	StatePartiallyFailed State = "PartiallyFailed"
	StateFailed          State = "Failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StatePartiallyFailed || s == StateFailed
}

var transitions = map[State][]State{
	StatePending:        {StateReserved},
	StateReserved:       {StateNetworkEnabled},
	StateNetworkEnabled: {StateDeploying},
	StateDeploying:      {StateDeployed},
	StateDeployed:       {StatePartitioned},
	StatePartitioned:    {StateInstalling, StateVerifying},
	StateInstalling:     {StateVerifying},
	StateVerifying:      {StateDone, StatePartiallyFailed},
}

// CanTransition reports whether a run may move from one state to another.
// Every non-terminal state may move to Failed.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	return slices.Contains(transitions[from], to)
}

// TransitionError reports a forbidden state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Machine tracks the state of a run. It implements provisioning.Observer so
// that phase events advance it.
type Machine struct {
	mu       sync.Mutex
	state    State
	history  []Transition
	err      error
	observer provisioning.Observer
}

// NewMachine creates a machine in the Pending state. State changes are
// reported to observer, which may be nil.
func NewMachine(observer provisioning.Observer) *Machine {
	return &Machine{state: StatePending, observer: observer}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every transition so far.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// Err returns the first forbidden transition attempted through Event.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Transition moves the machine to the given state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	m.history = append(m.history, Transition{From: from, To: to, At: time.Now()})
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.Event(provisioning.Event{
			Type:      provisioning.EventStateChanged,
			Message:   "Run state changed",
			Timestamp: time.Now(),
			Fields:    map[string]string{"from": string(from), "to": string(to)},
		})
	}
	return nil
}

// Event implements provisioning.Observer.
func (m *Machine) Event(event provisioning.Event) {
	to, ok := stateFor(event)
	if !ok {
		return
	}
	if err := m.Transition(to); err != nil {
		m.mu.Lock()
		if m.err == nil {
			m.err = err
		}
		m.mu.Unlock()
	}
}

// stateFor maps phase events onto run states. Long phases enter their state
// when they start; short ones when they complete.
func stateFor(event provisioning.Event) (State, bool) {
	switch event.Type {
	case provisioning.EventPhaseStarted:
		switch event.Phase {
		case provisioning.PhaseDeploy:
			return StateDeploying, true
		case provisioning.PhaseInstall:
			return StateInstalling, true
		case provisioning.PhaseVerify:
			return StateVerifying, true
		}
	case provisioning.EventPhaseCompleted:
		switch event.Phase {
		case provisioning.PhaseReservation:
			return StateReserved, true
		case provisioning.PhaseOverlay:
			return StateNetworkEnabled, true
		case provisioning.PhaseDeploy:
			return StateDeployed, true
		case provisioning.PhasePartition:
			return StatePartitioned, true
		}
	}
	return "", false
}
