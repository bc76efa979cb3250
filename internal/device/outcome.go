package device

import (
	"sort"
	"sync"

	"github.com/muurk/battctl/internal/privileged"
)

// Outcome is the terminal result of a threshold-apply call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSuccessBattery2
	OutcomeError
	OutcomeTimeout
	OutcomeNotUpdated
	OutcomePasswordRequired
	OutcomeDischargeBattery
)

// String returns the wire payload consumers key their behaviour off.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSuccessBattery2:
		return "success-bat2"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNotUpdated:
		return "not-updated"
	case OutcomePasswordRequired:
		return "password-required"
	case OutcomeDischargeBattery:
		return "discharge-battery"
	default:
		return "unknown"
	}
}

// Status maps the outcome to the exit status returned by apply calls.
// Password prompts and discharge hints are not failures of the call.
func (o Outcome) Status() privileged.Status {
	switch o {
	case OutcomeSuccess, OutcomeSuccessBattery2, OutcomePasswordRequired, OutcomeDischargeBattery:
		return privileged.StatusSuccess
	default:
		return privileged.StatusError
	}
}

// EventKind distinguishes driver notifications.
type EventKind int

const (
	// EventThresholdApplied carries the Outcome of an apply call.
	EventThresholdApplied EventKind = iota
	// EventBatteryStatusChanged is raised when a battery is removed or
	// reinserted.
	EventBatteryStatusChanged
)

// Event is delivered to observers.
type Event struct {
	Kind    EventKind
	Device  string
	Battery int
	Outcome Outcome
}

// Observers is an explicit list of event callbacks.
type Observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

// NewObservers returns an empty observer list.
func NewObservers() *Observers {
	return &Observers{fns: make(map[int]func(Event))}
}

// Subscribe adds fn and returns a function removing it.
func (o *Observers) Subscribe(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Event))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

// Emit calls every observer in subscription order.
func (o *Observers) Emit(e Event) {
	if o == nil {
		return
	}
	o.mu.Lock()
	ids := make([]int, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
