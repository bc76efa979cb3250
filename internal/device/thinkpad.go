package device

import (
	"context"

	"github.com/muurk/battctl/internal/config"
)

const thinkpadACPIPath = "/sys/devices/platform/thinkpad_acpi"

// thresholdFiles locates the threshold files and helper commands of one
// ThinkPad battery.
type thresholdFiles struct {
	bat       string
	endPath   string
	startPath string
	endStart  string
	startEnd  string
}

func acpiFiles(bat string) thresholdFiles {
	end, start := batteryPaths(bat)
	return thresholdFiles{
		bat: bat, endPath: end, startPath: start,
		endStart: bat + "_END_START", startEnd: bat + "_START_END",
	}
}

func smapiFiles(bat string) thresholdFiles {
	base := "/sys/devices/platform/smapi/" + bat + "/"
	return thresholdFiles{
		bat: bat, endPath: base + "stop_charge_thresh", startPath: base + "start_charge_thresh",
		endStart: "TP_" + bat + "_END_START", startEnd: "TP_" + bat + "_START_END",
	}
}

func (f thresholdFiles) backend(d *Driver) Backend {
	return &sysfsEndStart{
		fs: d.env.FS, h: d.h,
		endPath: f.endPath, startPath: f.startPath,
		endStart: f.endStart, startEnd: f.startEnd,
	}
}

// thinkpadLegacyDescriptor narrows the start ranges for tp_smapi, which also
// needs a larger gap.
func thinkpadLegacyDescriptor(name string, typ int) Descriptor {
	desc := variableEndStart(name, typ, 5)
	desc.StartRanges = ModeRanges{
		Full:     Range{75, 95},
		Balanced: Range{60, 80},
		MaxLife:  Range{40, 80},
	}
	return desc
}

// NewThinkpadDual drives ThinkPads with two removable batteries.
func NewThinkpadDual(env Env) *Driver {
	desc := variableEndStart("Thinkpad BAT0/BAT1", 19, 2)
	desc.DualBattery = true
	return newDualThinkpad(env, desc, thinkpadACPIPath, acpiFiles("BAT0"), acpiFiles("BAT1"))
}

// NewThinkpadLegacyDual drives dual battery ThinkPads through tp_smapi.
func NewThinkpadLegacyDual(env Env) *Driver {
	desc := thinkpadLegacyDescriptor("Thinkpad tpsmapi BAT0/BAT1", 13)
	desc.DualBattery = true
	return newDualThinkpad(env, desc, "", smapiFiles("BAT0"), smapiFiles("BAT1"))
}

// newDualThinkpad builds a dual battery driver. During a full scan both
// batteries must be present; once the type is persisted either one is
// enough and the other is marked removed.
func newDualThinkpad(env Env, desc Descriptor, marker string, bat0, bat1 thresholdFiles) *Driver {
	return newDriver(env, family{
		desc: desc,
		probe: func(_ context.Context, d *Driver) bool {
			fs := d.env.FS
			bat0Present := fs.FileExists(bat0.endPath)
			bat1Present := fs.FileExists(bat1.endPath)

			if d.env.Settings.Int(config.KeyDeviceType) == d.desc.Type {
				if !bat0Present && !bat1Present {
					return false
				}
			} else {
				if marker != "" && !fs.FileExists(marker) {
					return false
				}
				for _, p := range []string{bat1.startPath, bat1.endPath, bat0.startPath, bat0.endPath} {
					if !fs.FileExists(p) {
						return false
					}
				}
			}

			d.mu.Lock()
			d.lanes[0].backends = []Backend{bat0.backend(d)}
			d.lanes[1].backends = []Backend{bat1.backend(d)}
			d.lanes[0].removed = !bat0Present
			d.lanes[1].removed = !bat1Present
			d.mu.Unlock()

			d.watchPresence(map[string]bool{
				bat0.endPath: bat0Present,
				bat1.endPath: bat1Present,
			}, func(path string, present bool) {
				battery := 1
				if path == bat1.endPath {
					battery = 2
				}
				d.batteryPresenceChanged(battery, present)
			})
			return true
		},
	})
}

// batteryPresenceChanged marks a battery removed or reinserted. A
// reinserted battery gets its configured mode applied again.
func (d *Driver) batteryPresenceChanged(battery int, present bool) {
	d.mu.Lock()
	l := d.lane(battery)
	l.removed = !present
	if present {
		mode := Mode(d.env.Settings.String(config.ChargingModeKey(battery)))
		d.applyLane(d.ctx, l, mode)
	}
	d.unlock()
	d.emitBatteryStatus(battery)
}

// NewThinkpadBAT0 drives single battery ThinkPads using BAT0.
func NewThinkpadBAT0(env Env) *Driver {
	return newSingleThinkpad(env, "Thinkpad BAT0", 20, acpiFiles("BAT0"), acpiFiles("BAT1"))
}

// NewThinkpadBAT1 drives single battery ThinkPads using BAT1.
func NewThinkpadBAT1(env Env) *Driver {
	return newSingleThinkpad(env, "Thinkpad BAT1", 21, acpiFiles("BAT1"), acpiFiles("BAT0"))
}

func newSingleThinkpad(env Env, name string, typ int, bat, other thresholdFiles) *Driver {
	f := newDischarger(bat.bat)
	return newDriver(env, family{
		desc:        variableEndStart(name, typ, 2),
		beforeApply: f.beforeApply,
		probe: func(_ context.Context, d *Driver) bool {
			fs := d.env.FS
			if !fs.FileExists(thinkpadACPIPath) {
				return false
			}
			if !fs.FileExists(bat.startPath) || !fs.FileExists(bat.endPath) || fs.FileExists(other.endPath) {
				return false
			}
			d.lanes[0].backends = []Backend{bat.backend(d)}
			return true
		},
	})
}

// NewThinkpadLegacyBAT0 drives single battery tp_smapi ThinkPads on BAT0.
func NewThinkpadLegacyBAT0(env Env) *Driver {
	return newSingleLegacy(env, "Thinkpad tpsmapi BAT0", 14, smapiFiles("BAT0"), smapiFiles("BAT1"))
}

// NewThinkpadLegacyBAT1 drives single battery tp_smapi ThinkPads on BAT1.
func NewThinkpadLegacyBAT1(env Env) *Driver {
	return newSingleLegacy(env, "Thinkpad tpsmapi BAT1", 15, smapiFiles("BAT1"), smapiFiles("BAT0"))
}

func newSingleLegacy(env Env, name string, typ int, bat, other thresholdFiles) *Driver {
	return newDriver(env, family{
		desc: thinkpadLegacyDescriptor(name, typ),
		probe: func(_ context.Context, d *Driver) bool {
			fs := d.env.FS
			if !fs.FileExists(bat.startPath) || !fs.FileExists(bat.endPath) || fs.FileExists(other.endPath) {
				return false
			}
			d.lanes[0].backends = []Backend{bat.backend(d)}
			return true
		},
	})
}
