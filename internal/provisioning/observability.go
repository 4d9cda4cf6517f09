package provisioning

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured provisioning events. Implementations must be
// safe for concurrent use: group events are emitted from concurrent tasks.
type Observer interface {
	Event(event Event)
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "deploy", "install")
	Message   string            // Human-readable message
	Group     int               // Group ordinal, 0 when not group specific
	Err       error             // Failure cause, if any
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a provisioning phase has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a provisioning phase completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a provisioning phase failed.
	EventPhaseFailed EventType = "phase.failed"

	// EventStateChanged indicates the run moved to a new state.
	EventStateChanged EventType = "state.changed"

	// EventGroupInstalled indicates a group installation finished.
	EventGroupInstalled EventType = "group.installed"
	// EventGroupVerified indicates a group verification finished.
	EventGroupVerified EventType = "group.verified"

	// EventWarning reports a tolerated problem.
	EventWarning EventType = "warning"
)

// LogObserver implements Observer by writing events to a logr.Logger.
type LogObserver struct {
	log logr.Logger
}

// NewLogObserver creates an observer logging to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	kv := []any{"event", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Group > 0 {
		kv = append(kv, "group", event.Group)
	}
	for k, v := range event.Fields {
		kv = append(kv, k, v)
	}

	switch {
	case event.Err != nil:
		o.log.Error(event.Err, event.Message, kv...)
	case event.Type == EventPhaseStarted || event.Type == EventPhaseCompleted:
		o.log.V(1).Info(event.Message, kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// Event implements Observer.
func (m MultiObserver) Event(event Event) {
	for _, o := range m {
		if o != nil {
			o.Event(event)
		}
	}
}

// RecordingObserver keeps every event in memory.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

// Event implements Observer.
func (r *RecordingObserver) Event(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *RecordingObserver) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:      EventPhaseStarted,
		Phase:     phase,
		Message:   "Phase started",
		Timestamp: time.Now(),
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:      EventPhaseCompleted,
		Phase:     phase,
		Message:   fmt.Sprintf("Phase completed in %v", duration.Round(time.Millisecond)),
		Timestamp: time.Now(),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:      EventPhaseFailed,
		Phase:     phase,
		Message:   "Phase failed",
		Err:       err,
		Timestamp: time.Now(),
	})
}

// LogWarning logs a tolerated problem of a phase.
func LogWarning(observer Observer, phase, message string, fields map[string]string) {
	observer.Event(Event{
		Type:      EventWarning,
		Phase:     phase,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now(),
	})
}

// LogGroupInstalled logs the end of a group installation.
func LogGroupInstalled(observer Observer, ordinal int, scratchID string, err error) {
	msg := "Group installation finished"
	if err != nil {
		msg = "Group installation failed"
	}
	observer.Event(Event{
		Type:      EventGroupInstalled,
		Phase:     PhaseInstall,
		Message:   msg,
		Group:     ordinal,
		Err:       err,
		Timestamp: time.Now(),
		Fields:    map[string]string{"scratch": scratchID},
	})
}

// LogGroupVerified logs the end of a group verification.
func LogGroupVerified(observer Observer, ordinal int, controllers []string, err error) {
	msg := "Group verified"
	if err != nil {
		msg = "Group verification failed"
	}
	observer.Event(Event{
		Type:      EventGroupVerified,
		Phase:     PhaseVerify,
		Message:   msg,
		Group:     ordinal,
		Err:       err,
		Timestamp: time.Now(),
		Fields:    map[string]string{"controllers": fmt.Sprint(controllers)},
	})
}
