package device

import (
	"context"
	"sync/atomic"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
)

const appleSMCModulePath = "/sys/module/applesmc"

// NewApple drives applesmc. The helper sets the end threshold and the
// charging LED threshold together.
func NewApple(env Env) *Driver {
	return newDriver(env, family{
		desc: variableEndOnly("Apple", 16),
		probe: func(_ context.Context, d *Driver) bool {
			endPath, _ := batteryPaths("BAT0")
			if !d.env.FS.FileExists(appleSMCModulePath) || !d.env.FS.FileExists(endPath) {
				return false
			}
			b := &appleBackend{
				sysfsEnd: sysfsEnd{fs: d.env.FS, h: d.h, endPath: endPath, command: "APPLE"},
				settings: d.env.Settings,
			}
			d.lanes[0].backends = []Backend{b}

			// A LED preference change must reach the SMC even when the
			// threshold itself already matches.
			d.subscribe(config.KeyAppleChargingLED, func(ctx context.Context) {
				b.ledChanged.Store(true)
				mode := Mode(d.env.Settings.String(config.KeyChargingMode))
				d.SetThresholdLimit(ctx, mode)
			})
			return true
		},
	})
}

type appleBackend struct {
	sysfsEnd
	settings   config.Store
	ledChanged atomic.Bool
}

func (b *appleBackend) Traits() Traits {
	return Traits{NoPreVerify: b.ledChanged.Load()}
}

func (b *appleBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	led := b.settings.Bool(config.KeyAppleChargingLED)
	changed := b.ledChanged.Swap(false)
	return b.h.run(ctx, b.command, itoa(t.End), itoa(appleLEDValue(t.End, led, changed)))
}

// appleLEDValue is the charge level at which the LED turns green. 0 keeps
// it off. Turning the LED off needs one write of 95 to reset it.
func appleLEDValue(end int, led, changed bool) int {
	switch {
	case led && end >= 97:
		return 95
	case led:
		return end - 2
	case changed:
		return 95
	default:
		return 0
	}
}
