package orchestrator

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Lifecycle states.
const (
	StateIdle           = "idle"
	StateUnsupported    = "unsupported"
	StateInstallBlocked = "install-blocked"
	StateActive         = "active"
	StateApplyFailed    = "apply-failed"
	StateStopped        = "stopped"
)

// Lifecycle events.
const (
	EventUnsupported = "unsupported"
	EventBlock       = "block"
	EventActivate    = "activate"
	EventFail        = "fail"
	EventReset       = "reset"
	EventStop        = "stop"
)

var settledStates = []string{StateUnsupported, StateInstallBlocked, StateActive, StateApplyFailed}

func newLifecycle(logger *zap.Logger) *fsm.FSM {
	events := fsm.Events{
		{Name: EventUnsupported, Src: []string{StateIdle}, Dst: StateUnsupported},
		{Name: EventBlock, Src: []string{StateIdle}, Dst: StateInstallBlocked},
		{Name: EventActivate, Src: []string{StateIdle}, Dst: StateActive},
		{Name: EventFail, Src: []string{StateIdle}, Dst: StateApplyFailed},
		{Name: EventReset, Src: settledStates, Dst: StateIdle},
		{Name: EventStop, Src: append([]string{StateIdle}, settledStates...), Dst: StateStopped},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			logger.Debug("Lifecycle transition",
				zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
		},
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}
