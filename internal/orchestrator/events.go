package orchestrator

import (
	"sync/atomic"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	// EventRouted fires once per request after intent resolution.
	EventRouted EventType = "routed"
	// EventPlanCreated fires when the planner returns a valid plan.
	EventPlanCreated EventType = "plan_created"
	// EventStepStarted fires when a plan step acquires its slot.
	EventStepStarted EventType = "step_started"
	// EventStepDone fires when a plan step succeeds.
	EventStepDone EventType = "step_done"
	// EventStepFailed fires when a plan step fails or is blocked.
	EventStepFailed EventType = "step_failed"
	// EventWaveDone fires at each wave join barrier.
	EventWaveDone EventType = "wave_done"
	// EventSupervision fires at the start of each repair round.
	EventSupervision EventType = "supervision_round"
	// EventDone fires once per request with the terminal outcome.
	EventDone EventType = "done"
)

// Event is one progress notification. The chat CLI renders these.
type Event struct {
	Type      EventType
	SessionID string
	Intent    Intent
	StepID    string
	StepTitle string
	Message   string
	Err       error
	Timestamp time.Time
}

// Emitter fans events out to a single subscriber without ever blocking
// the execution path. A full buffer drops the event after a short
// grace period.
type Emitter struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Emitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, dropping it if the subscriber cannot keep up.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.events <- ev:
		return
	default:
	}
	select {
	case e.events <- ev:
	case <-time.After(100 * time.Millisecond):
		e.dropped.Add(1)
	}
}

// Events returns the subscriber side.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Dropped returns how many events were discarded under backpressure.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}
