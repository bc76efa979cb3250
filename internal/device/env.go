package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

// DefaultSettleDelay is the grace period before the single re-read after a
// write that did not show up immediately.
const DefaultSettleDelay = 200 * time.Millisecond

// DefaultHotplugPoll is how often battery presence is re-checked in
// addition to file events. sysfs does not always raise inotify events.
const DefaultHotplugPoll = 5 * time.Second

// Commander runs commands on behalf of drivers. *privileged.Channel
// implements it.
type Commander interface {
	Execute(ctx context.Context, argv []string) (privileged.Status, *string)
	RunCtl(ctx context.Context, ctlPath, command string, args ...string) (privileged.Status, *string)
}

// PowerSource reports the system battery percentage as it changes.
type PowerSource interface {
	Subscribe(ctx context.Context, fn func(percent float64)) (stop func(), err error)
}

// Env carries the collaborators shared by every driver.
type Env struct {
	FS        *probe.FS
	Commander Commander
	Settings  config.Store
	Secrets   config.Secrets
	Power     PowerSource
	Observers *Observers
	Logger    *zap.Logger

	SettleDelay time.Duration
	HotplugPoll time.Duration
}

func (e Env) withDefaults() Env {
	if e.FS == nil {
		e.FS = probe.Host()
	}
	if e.Settings == nil {
		e.Settings = config.NewMemoryStore()
	}
	if e.Observers == nil {
		e.Observers = NewObservers()
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.SettleDelay <= 0 {
		e.SettleDelay = DefaultSettleDelay
	}
	if e.HotplugPoll <= 0 {
		e.HotplugPoll = DefaultHotplugPoll
	}
	return e
}

// helper runs the privileged helper at the path handed over by the
// orchestrator.
type helper struct {
	cmd Commander

	mu   sync.RWMutex
	path string
}

func (h *helper) setPath(p string) {
	h.mu.Lock()
	h.path = p
	h.mu.Unlock()
}

func (h *helper) ctlPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.path
}

func (h *helper) run(ctx context.Context, command string, args ...string) (privileged.Status, *string) {
	if h.cmd == nil {
		return privileged.StatusError, nil
	}
	return h.cmd.RunCtl(ctx, h.ctlPath(), command, args...)
}

func (h *helper) exec(ctx context.Context, argv ...string) (privileged.Status, *string) {
	if h.cmd == nil {
		return privileged.StatusError, nil
	}
	return h.cmd.Execute(ctx, argv)
}
