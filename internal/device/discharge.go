package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/metrics"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

// Charge behaviour values of the thinkpad_acpi charge_behaviour attribute.
const (
	behaviourAuto           = "auto"
	behaviourForceDischarge = "force-discharge"
)

// discharger forces the battery to discharge while it is above the active
// end threshold. The battery level comes from the power source; decisions
// are re-evaluated on every level change and every apply.
type discharger struct {
	bat           string
	behaviourPath string
	capacityPath  string

	// Guarded by Driver.mu.
	initialized bool
	mode        Mode

	mu    sync.Mutex
	level int
	stop  func()
}

func newDischarger(bat string) *discharger {
	return &discharger{
		bat:           bat,
		behaviourPath: "/sys/class/power_supply/" + bat + "/charge_behaviour",
		capacityPath:  capacityPath(bat),
		level:         -1,
	}
}

// beforeApply is the family hook. d.mu is held.
func (f *discharger) beforeApply(ctx context.Context, d *Driver, _ *lane, mode Mode) {
	f.mode = mode
	if !f.initialized {
		f.initialized = true
		if d.env.Settings.Bool(config.KeyForceDischargeEnabled) {
			f.enable(ctx, d)
		}
		d.subscribe(config.KeyForceDischargeEnabled, func(ctx context.Context) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.env.Settings.Bool(config.KeyForceDischargeEnabled) {
				f.enable(ctx, d)
			} else {
				f.disable(ctx, d)
			}
		})
		d.onDestroy(func() { f.shutdown(d) })
		return
	}
	if d.env.Settings.Bool(config.KeyForceDischargeEnabled) {
		f.evaluate(ctx, d)
	}
}

// enable starts battery level monitoring. d.mu is held.
func (f *discharger) enable(ctx context.Context, d *Driver) {
	f.setLevel(d.env.FS.ReadFileIntOr(f.capacityPath, -1))
	f.evaluate(ctx, d)

	f.mu.Lock()
	running := f.stop != nil
	f.mu.Unlock()
	if running || d.env.Power == nil {
		return
	}

	stop, err := d.env.Power.Subscribe(d.ctx, func(percent float64) {
		metrics.BatteryLevel.Set(percent)
		if !f.setLevel(int(percent)) {
			return
		}
		d.async(func(ctx context.Context) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if f.monitoring() {
				f.evaluate(ctx, d)
			}
		})
	})
	if err != nil {
		d.logger.Warn("Failed to subscribe to battery level", zap.Error(err))
		return
	}
	f.mu.Lock()
	f.stop = stop
	f.mu.Unlock()
}

// disable stops monitoring and returns the battery to automatic charging.
// d.mu is held.
func (f *discharger) disable(ctx context.Context, d *Driver) {
	f.stopMonitoring()
	f.setBehaviour(ctx, d, behaviourAuto)
}

// shutdown runs on Destroy after the driver context is cancelled, so the
// revert gets its own deadline.
func (f *discharger) shutdown(d *Driver) {
	if !f.stopMonitoring() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f.setBehaviour(ctx, d, behaviourAuto)
}

func (f *discharger) stopMonitoring() bool {
	f.mu.Lock()
	stop := f.stop
	f.stop = nil
	f.mu.Unlock()
	if stop != nil {
		stop()
	}
	return stop != nil
}

func (f *discharger) monitoring() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stop != nil
}

// setLevel records the battery level and reports whether it changed.
func (f *discharger) setLevel(level int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.level == level {
		return false
	}
	f.level = level
	return true
}

// evaluate discharges while the level is above the end threshold of the
// current mode.
func (f *discharger) evaluate(ctx context.Context, d *Driver) {
	f.mu.Lock()
	level := f.level
	f.mu.Unlock()

	threshold := d.env.Settings.Int(config.EndThresholdKey(string(f.mode), 1))
	if level > threshold {
		f.setBehaviour(ctx, d, behaviourForceDischarge)
	} else {
		f.setBehaviour(ctx, d, behaviourAuto)
	}
}

func (f *discharger) setBehaviour(ctx context.Context, d *Driver, behaviour string) {
	current, _ := d.env.FS.ReadFile(f.behaviourPath)
	if probe.BracketToken(current) == behaviour {
		return
	}
	status, _ := d.h.run(ctx, "FORCE_DISCHARGE_"+f.bat, behaviour)
	if status != privileged.StatusSuccess {
		d.logger.Warn("Failed to set charge behaviour",
			zap.String("behaviour", behaviour), zap.Stringer("status", status))
		return
	}
	d.logger.Info("Charge behaviour set", zap.String("battery", f.bat), zap.String("behaviour", behaviour))
}
