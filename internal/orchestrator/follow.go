package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/device"
)

// followSettings re-applies thresholds when the user changes the charging
// mode, a threshold value of the active mode or the backend choice.
func (o *Orchestrator) followSettings(d *device.Driver) {
	desc := d.Descriptor()
	batteries := []int{1}
	if desc.DualBattery {
		batteries = append(batteries, 2)
	}

	var unsubscribe []func()
	watch := func(key string, battery int, onlyFor device.Mode) {
		unsubscribe = append(unsubscribe, o.env.Settings.Subscribe(key, func(string) {
			mode := device.Mode(o.env.Settings.String(config.ChargingModeKey(battery)))
			if onlyFor != "" && mode != onlyFor {
				return
			}
			o.background(func(ctx context.Context) {
				o.logger.Debug("Setting changed, applying thresholds",
					zap.String("key", key), zap.Int("battery", battery), zap.String("mode", string(mode)))
				if battery == 2 {
					o.Apply2(ctx, mode)
					return
				}
				o.Apply(ctx, mode)
			})
		}))
	}

	for _, battery := range batteries {
		watch(config.ChargingModeKey(battery), battery, "")
		if !desc.VariableThreshold {
			continue
		}
		for _, mode := range []device.Mode{device.ModeFull, device.ModeBalanced, device.ModeMaxLife} {
			if !desc.SupportsMode(mode) {
				continue
			}
			watch(config.EndThresholdKey(string(mode), battery), battery, mode)
			if desc.StartThreshold {
				watch(config.StartThresholdKey(string(mode), battery), battery, mode)
			}
		}
	}
	if len(o.env.Settings.Strings(config.KeyMultipleConfigurationSupported)) > 1 {
		watch(config.KeyConfigurationMode, 1, "")
	}

	o.mu.Lock()
	o.follow = append(o.follow, unsubscribe...)
	o.mu.Unlock()
}
