package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
)

// State is the runtime state of a driver. Limits are -1 until read from
// the hardware.
type State struct {
	EndLimit    int
	StartLimit  int
	EndLimit2   int
	StartLimit2 int
	Mode        Mode
	Mode2       Mode

	// ConfigurationMode is the backend used by the last apply.
	ConfigurationMode string

	Battery1Removed bool
	Battery2Removed bool
}

// Constructor builds a driver. Nothing is probed until IsAvailable.
type Constructor func(env Env) *Driver

// family is the vendor specific part of a driver.
type family struct {
	desc Descriptor

	// levels pins the end percentage per mode for devices without a user
	// settable threshold.
	levels map[Mode]int

	// probe decides availability and installs the backends. It runs
	// read-only checks and may register monitors through the driver.
	probe func(ctx context.Context, d *Driver) bool

	// beforeApply runs before the write/verify protocol of every apply on
	// the first battery.
	beforeApply func(ctx context.Context, d *Driver, l *lane, mode Mode)
}

// lane is the per-battery part of a driver.
type lane struct {
	battery  int
	success  Outcome
	backends []Backend
	reading  Reading
	mode     Mode
	removed  bool
}

func newLane(battery int) *lane {
	success := OutcomeSuccess
	if battery == 2 {
		success = OutcomeSuccessBattery2
	}
	return &lane{battery: battery, success: success, reading: UnknownReading()}
}

// Driver applies charge policies to one hardware family. All vendor
// behaviour lives in its family and backends; the write/verify protocol
// is shared.
type Driver struct {
	desc   Descriptor
	fam    family
	env    Env
	logger *zap.Logger
	h      *helper

	// mu serialises applies and guards the lanes.
	mu         sync.Mutex
	lanes      []*lane
	configMode string
	queued     []Event

	timerMu sync.Mutex
	settle  *time.Timer

	lifeMu   sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
	cleanups []func()
}

func newDriver(env Env, f family) *Driver {
	env = env.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		desc:   f.desc,
		fam:    f,
		env:    env,
		logger: env.Logger.With(zap.String("device", f.desc.Name)),
		h:      &helper{cmd: env.Commander},
		ctx:    ctx,
		cancel: cancel,
	}
	d.lanes = []*lane{newLane(1)}
	if f.desc.DualBattery {
		d.lanes = append(d.lanes, newLane(2))
	}
	return d
}

// Descriptor returns the capability metadata.
func (d *Driver) Descriptor() Descriptor {
	return d.desc
}

// Type returns the persisted type code.
func (d *Driver) Type() int {
	return d.desc.Type
}

// Name returns the display name.
func (d *Driver) Name() string {
	return d.desc.Name
}

// NeedsRoot reports whether writes go through the privileged helper.
func (d *Driver) NeedsRoot() bool {
	return d.desc.NeedRoot
}

// Observers returns the list outcomes are delivered to.
func (d *Driver) Observers() *Observers {
	return d.env.Observers
}

// State returns a copy of the runtime state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		EndLimit:          d.lanes[0].reading.End,
		StartLimit:        d.lanes[0].reading.Start,
		EndLimit2:         -1,
		StartLimit2:       -1,
		Mode:              d.lanes[0].mode,
		ConfigurationMode: d.configMode,
		Battery1Removed:   d.lanes[0].removed,
	}
	if len(d.lanes) > 1 {
		s.EndLimit2 = d.lanes[1].reading.End
		s.StartLimit2 = d.lanes[1].reading.Start
		s.Mode2 = d.lanes[1].mode
		s.Battery2Removed = d.lanes[1].removed
	}
	return s
}

// IsAvailable probes the hardware. It never invokes the privileged helper.
func (d *Driver) IsAvailable(ctx context.Context) bool {
	if d.fam.probe == nil {
		return false
	}
	ok := d.fam.probe(ctx, d)
	d.logger.Debug("Probed device", zap.Int("type", d.desc.Type), zap.Bool("available", ok))
	return ok
}

// SetCtlPath sets the privileged helper used for writes.
func (d *Driver) SetCtlPath(path string) {
	d.h.setPath(path)
}

// SetThresholdLimit applies mode to the first battery.
func (d *Driver) SetThresholdLimit(ctx context.Context, mode Mode) privileged.Status {
	d.mu.Lock()
	defer d.unlock()
	return d.applyLane(ctx, d.lanes[0], mode)
}

// SetThresholdLimit2 applies mode to the second battery of a dual battery
// device.
func (d *Driver) SetThresholdLimit2(ctx context.Context, mode Mode) privileged.Status {
	d.mu.Lock()
	defer d.unlock()
	if len(d.lanes) < 2 {
		d.emit(d.lanes[0], OutcomeError)
		return privileged.StatusError
	}
	return d.applyLane(ctx, d.lanes[1], mode)
}

// SetThresholdLimitDual applies the configured modes to both batteries.
// The second battery is skipped when the first one failed.
func (d *Driver) SetThresholdLimitDual(ctx context.Context) privileged.Status {
	status := d.SetThresholdLimit(ctx, Mode(d.env.Settings.String(config.KeyChargingMode)))
	if status != privileged.StatusSuccess || !d.desc.DualBattery {
		return status
	}
	return d.SetThresholdLimit2(ctx, Mode(d.env.Settings.String(config.KeyChargingMode2)))
}

// Refresh re-reads the thresholds of every present battery through the
// selected backend. Nothing is written and no outcome is emitted.
func (d *Driver) Refresh(ctx context.Context) privileged.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range d.lanes {
		if l.removed {
			continue
		}
		b := d.selectBackend(l)
		if b == nil {
			return privileged.StatusError
		}
		r, status := b.Read(ctx)
		if status != privileged.StatusSuccess {
			return status
		}
		l.reading = r
		if r.Mode != "" {
			l.mode = r.Mode
		}
	}
	return privileged.StatusSuccess
}

// unlock releases d.mu and then delivers the events queued while it was
// held. Observers may call back into the driver.
func (d *Driver) unlock() {
	events := d.queued
	d.queued = nil
	d.mu.Unlock()
	for _, e := range events {
		d.env.Observers.Emit(e)
	}
}

// Destroy stops timers and monitors and waits for background work. It is
// idempotent.
func (d *Driver) Destroy() {
	d.lifeMu.Lock()
	if d.closed {
		d.lifeMu.Unlock()
		return
	}
	d.closed = true
	cleanups := d.cleanups
	d.cleanups = nil
	d.cancel()
	d.lifeMu.Unlock()

	d.timerMu.Lock()
	if d.settle != nil {
		d.settle.Stop()
		d.settle = nil
	}
	d.timerMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	d.wg.Wait()
	d.logger.Debug("Driver destroyed")
}

// onDestroy registers fn to run on Destroy.
func (d *Driver) onDestroy(fn func()) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.closed {
		fn()
		return
	}
	d.cleanups = append(d.cleanups, fn)
}

// async runs fn in the background until Destroy.
func (d *Driver) async(fn func(ctx context.Context)) {
	d.lifeMu.Lock()
	if d.closed {
		d.lifeMu.Unlock()
		return
	}
	d.wg.Add(1)
	ctx := d.ctx
	d.lifeMu.Unlock()

	go func() {
		defer d.wg.Done()
		fn(ctx)
	}()
}

// subscribe watches a setting for the lifetime of the driver. fn runs in
// the background.
func (d *Driver) subscribe(key string, fn func(ctx context.Context)) {
	unsubscribe := d.env.Settings.Subscribe(key, func(string) {
		d.async(fn)
	})
	d.onDestroy(unsubscribe)
}

// publishBackends records the usable backends of a multi-backend device.
func (d *Driver) publishBackends(backends []Backend) {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	d.setSetting(func(s config.Store) error {
		return s.SetStrings(config.KeyMultipleConfigurationSupported, names)
	})
	if len(names) == 1 {
		d.setSetting(func(s config.Store) error {
			return s.SetString(config.KeyConfigurationMode, names[0])
		})
	}
	d.lanes[0].backends = backends
}

// selectBackend returns the backend to use for l. With several backends
// the configured one wins while it is still usable; otherwise the first
// one is used and persisted.
func (d *Driver) selectBackend(l *lane) Backend {
	switch len(l.backends) {
	case 0:
		return nil
	case 1:
		d.configMode = l.backends[0].Name()
		return l.backends[0]
	}

	want := d.env.Settings.String(config.KeyConfigurationMode)
	for _, b := range l.backends {
		if b.Name() == want {
			d.configMode = want
			return b
		}
	}
	fallback := l.backends[0]
	d.logger.Info("Configured backend unavailable, using fallback",
		zap.String("configured", want), zap.String("backend", fallback.Name()))
	d.setSetting(func(s config.Store) error {
		return s.SetString(config.KeyConfigurationMode, fallback.Name())
	})
	d.configMode = fallback.Name()
	return fallback
}

func (d *Driver) setSetting(fn func(config.Store) error) {
	if err := fn(d.env.Settings); err != nil {
		d.logger.Warn("Failed to save setting", zap.Error(err))
	}
}

func (d *Driver) lane(battery int) *lane {
	if battery == 2 && len(d.lanes) > 1 {
		return d.lanes[1]
	}
	return d.lanes[0]
}
