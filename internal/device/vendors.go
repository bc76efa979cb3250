package device

import (
	"context"
	"strings"

	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

// Platform attributes of the single-mechanism vendors.
const (
	lgCareLimitPath       = "/sys/devices/platform/lg-laptop/battery_care_limit"
	samsungExtenderPath   = "/sys/devices/platform/samsung/battery_life_extender"
	sonyLimiterPath       = "/sys/devices/platform/sony-laptop/battery_care_limiter"
	sonyHighspeedPath     = "/sys/devices/platform/sony-laptop/battery_highspeed_charging"
	huaweiThresholdsPath  = "/sys/devices/platform/huawei-wmi/charge_control_thresholds"
	toshibaModulePath     = "/sys/module/toshiba_acpi"
	acerHealthModePath    = "/sys/bus/wmi/drivers/acer-wmi-battery/health_mode"
	msiPlatformPath       = "/sys/devices/platform/msi-ec/"
	panasonicEcoModePath  = "/sys/devices/platform/panasonic/eco_mode"
	tuxedoProfilePath     = "/sys/devices/platform/tuxedo_keyboard/charging_profile/charging_profile"
	tuxedoProfilesPath    = "/sys/devices/platform/tuxedo_keyboard/charging_profile/charging_profiles_available"
	gigabyteModePath      = "/sys/devices/platform/gigabyte_laptop/charge_mode"
	gigabyteLimitPath     = "/sys/devices/platform/gigabyte_laptop/charge_limit"
	tuxedoExpectedProfile = "high_capacity balanced stationary"
)

// toggleLevels is the end percentage of on/off style devices.
var toggleLevels = map[Mode]int{ModeFull: 100, ModeMaxLife: 80}

// NewLG drives the lg-laptop battery care limit (100 or 80).
func NewLG(env Env) *Driver {
	return newDriver(env, family{
		desc:   toggle("LG", 5),
		levels: toggleLevels,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(lgCareLimitPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&mappedFile{
				fs: d.env.FS, h: d.h, path: lgCareLimitPath, command: "LG",
				values: newValueMap([2]int{100, 100}, [2]int{80, 80}),
			}}
			return true
		},
	})
}

// NewSamsung drives the samsung battery life extender switch.
func NewSamsung(env Env) *Driver {
	desc := toggle("Samsung", 6)
	desc.ModeNotValue = true
	desc.Icons = Icons{}
	return newDriver(env, family{
		desc:   desc,
		levels: toggleLevels,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(samsungExtenderPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&mappedFile{
				fs: d.env.FS, h: d.h, path: samsungExtenderPath, command: "SAMSUNG",
				values: newValueMap([2]int{100, 0}, [2]int{80, 1}),
			}}
			return true
		},
	})
}

// NewSony drives the sony-laptop battery care limiter and, when present,
// high speed charging as the express mode.
func NewSony(env Env) *Driver {
	env = env.withDefaults()
	desc := toggle("Sony", 7)
	desc.BalancedMode = true
	desc.Icons = Icons{Full: "100", Balanced: "080", MaxLife: "050"}
	desc.ExpressMode = env.FS.FileExists(sonyHighspeedPath)
	return newDriver(env, family{
		desc:   desc,
		levels: map[Mode]int{ModeFull: 100, ModeBalanced: 80, ModeMaxLife: 50},
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(sonyLimiterPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&sonyBackend{
				fs: d.env.FS, h: d.h, express: d.desc.ExpressMode,
			}}
			return true
		},
	})
}

type sonyBackend struct {
	fs      *probe.FS
	h       *helper
	express bool
}

func (b *sonyBackend) Name() string { return "sysfs" }

// Read maps a limiter of 0 (no limit) to 100%. Express mode needs both
// high speed charging and a cleared limiter.
func (b *sonyBackend) Read(context.Context) (Reading, privileged.Status) {
	r := UnknownReading()
	limiter, ok := b.fs.ReadFileInt(sonyLimiterPath)
	if !ok {
		return r, privileged.StatusSuccess
	}
	if limiter == 0 {
		if b.highspeed() {
			r.Mode = ModeExpress
		}
		limiter = 100
	}
	r.End = limiter
	return r, privileged.StatusSuccess
}

// Verify also requires high speed charging to be on exactly when express
// is the target.
func (b *sonyBackend) Verify(t Target, r Reading) bool {
	if !t.Matches(r) {
		return false
	}
	return !b.express || b.highspeed() == (t.Mode == ModeExpress)
}

func (b *sonyBackend) highspeed() bool {
	return b.express && b.fs.ReadFileIntOr(sonyHighspeedPath, -1) == 1
}

// Write always asserts high speed charging for express. Other targets
// leave it untouched unless it is on.
func (b *sonyBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	limiter := t.End
	if t.Mode == ModeExpress || limiter == 100 {
		limiter = 0
	}
	highspeed := "unsupported"
	wantExpress := t.Mode == ModeExpress
	if b.express && (wantExpress || b.highspeed()) {
		highspeed = "off"
		if wantExpress {
			highspeed = "on"
		}
	}
	return b.h.run(ctx, "SONY", itoa(limiter), highspeed)
}

// NewHuawei drives the huawei-wmi combined "start end" threshold file.
func NewHuawei(env Env) *Driver {
	return newDriver(env, family{
		desc: variableEndStart("Huawei", 8, 2),
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(huaweiThresholdsPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&huaweiBackend{fs: d.env.FS, h: d.h}}
			return true
		},
	})
}

type huaweiBackend struct {
	fs *probe.FS
	h  *helper
}

func (b *huaweiBackend) Name() string { return "sysfs" }

func (b *huaweiBackend) Read(context.Context) (Reading, privileged.Status) {
	r := UnknownReading()
	s, ok := b.fs.ReadFile(huaweiThresholdsPath)
	if !ok {
		return r, privileged.StatusSuccess
	}
	fields := strings.Fields(s)
	if len(fields) == 2 {
		r.Start = atoiOr(fields[0], -1)
		r.End = atoiOr(fields[1], -1)
	}
	return r, privileged.StatusSuccess
}

func (b *huaweiBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	return b.h.run(ctx, "HUAWEI", itoa(t.End), itoa(t.Start))
}

// NewToshibaBAT0 drives toshiba_acpi on BAT0.
func NewToshibaBAT0(env Env) *Driver {
	return newToshiba(env, "Toshiba BAT0", 9, "BAT0")
}

// NewToshibaBAT1 drives toshiba_acpi on BAT1.
func NewToshibaBAT1(env Env) *Driver {
	return newToshiba(env, "Toshiba BAT1", 10, "BAT1")
}

func newToshiba(env Env, name string, typ int, bat string) *Driver {
	endPath, _ := batteryPaths(bat)
	return newDriver(env, family{
		desc:   toggle(name, typ),
		levels: toggleLevels,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(toshibaModulePath) || !d.env.FS.FileExists(endPath) {
				return false
			}
			b := &toshibaBackend{
				sysfsEnd:     sysfsEnd{fs: d.env.FS, h: d.h, endPath: endPath, command: bat + "_END"},
				capacityPath: capacityPath(bat),
			}
			d.lanes[0].backends = []Backend{b}
			d.lanes[0].reading, _ = b.Read(context.Background())
			return true
		},
	})
}

// toshibaBackend writes without a pre-check. The firmware refuses to lower
// the limit while the battery is above it, which is reported as a request
// to discharge rather than a failure.
type toshibaBackend struct {
	sysfsEnd
	capacityPath string
}

func (b *toshibaBackend) Traits() Traits { return Traits{NoPreVerify: true} }

func (b *toshibaBackend) ResolveMismatch(t Target, _ Reading) (Reading, Outcome, bool) {
	if t.End == 80 && b.fs.ReadFileIntOr(b.capacityPath, -1) > 75 {
		r := UnknownReading()
		r.End = 100
		return r, OutcomeDischargeBattery, true
	}
	return Reading{}, 0, false
}

// NewSystem76 drives System76 firmware thresholds on BAT0.
func NewSystem76(env Env) *Driver {
	endPath, startPath := batteryPaths("BAT0")
	return newDriver(env, family{
		desc: variableEndStart("System76", 11, 2),
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.VendorContains("System76") {
				return false
			}
			if !d.env.FS.FileExists(startPath) || !d.env.FS.FileExists(endPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&sysfsEndStart{
				fs: d.env.FS, h: d.h, endPath: endPath, startPath: startPath,
				endStart: "BAT0_END_START", startEnd: "BAT0_START_END",
			}}
			return true
		},
	})
}

// NewAcer drives the acer-wmi-battery health mode switch.
func NewAcer(env Env) *Driver {
	return newDriver(env, family{
		desc:   toggle("Acer", 17),
		levels: toggleLevels,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(acerHealthModePath) {
				return false
			}
			d.lanes[0].backends = []Backend{&mappedFile{
				fs: d.env.FS, h: d.h, path: acerHealthModePath, command: "ACER",
				values: newValueMap([2]int{100, 0}, [2]int{80, 1}),
			}}
			return true
		},
	})
}

// NewMsiBAT0 drives msi-ec end thresholds on BAT0.
func NewMsiBAT0(env Env) *Driver {
	return newMsi(env, "Msi BAT0", 18, "BAT0")
}

// NewMsiBAT1 drives msi-ec end thresholds on BAT1.
func NewMsiBAT1(env Env) *Driver {
	return newMsi(env, "Msi BAT1", 26, "BAT1")
}

func newMsi(env Env, name string, typ int, bat string) *Driver {
	endPath, _ := batteryPaths(bat)
	return newDriver(env, family{
		desc: variableEndOnly(name, typ),
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(msiPlatformPath) || !d.env.FS.FileExists(endPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&sysfsEnd{
				fs: d.env.FS, h: d.h, endPath: endPath, command: bat + "_END",
			}}
			return true
		},
	})
}

// NewPanasonic drives the panasonic eco mode switch.
func NewPanasonic(env Env) *Driver {
	desc := toggle("Panasonic", 23)
	desc.ModeNotValue = true
	desc.Icons = Icons{}
	return newDriver(env, family{
		desc:   desc,
		levels: toggleLevels,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(panasonicEcoModePath) {
				return false
			}
			d.lanes[0].backends = []Backend{&mappedFile{
				fs: d.env.FS, h: d.h, path: panasonicEcoModePath, command: "PANASONIC",
				values: newValueMap([2]int{100, 0}, [2]int{80, 1}),
			}}
			return true
		},
	})
}

// tuxedoProfiles maps charging profiles to their end percentage.
var tuxedoProfiles = map[string]int{
	"high_capacity": 100,
	"balanced":      90,
	"stationary":    80,
}

// NewTuxedo drives the tuxedo_keyboard charging profiles.
func NewTuxedo(env Env) *Driver {
	desc := toggle("Tuxedo", 27)
	desc.BalancedMode = true
	desc.Icons = Icons{Full: "100", Balanced: "090", MaxLife: "080"}
	return newDriver(env, family{
		desc:   desc,
		levels: map[Mode]int{ModeFull: 100, ModeBalanced: 90, ModeMaxLife: 80},
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(tuxedoProfilePath) || !d.env.FS.FileExists(tuxedoProfilesPath) {
				return false
			}
			if profiles, _ := d.env.FS.ReadFile(tuxedoProfilesPath); profiles != tuxedoExpectedProfile {
				return false
			}
			d.lanes[0].backends = []Backend{&tuxedoBackend{fs: d.env.FS, h: d.h}}
			return true
		},
	})
}

type tuxedoBackend struct {
	fs *probe.FS
	h  *helper
}

func (b *tuxedoBackend) Name() string { return "sysfs" }

func (b *tuxedoBackend) Read(context.Context) (Reading, privileged.Status) {
	r := UnknownReading()
	profile, _ := b.fs.ReadFile(tuxedoProfilePath)
	if end, ok := tuxedoProfiles[profile]; ok {
		r.End = end
	}
	return r, privileged.StatusSuccess
}

func (b *tuxedoBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	for profile, end := range tuxedoProfiles {
		if end == t.End {
			return b.h.run(ctx, "TUXEDO", profile)
		}
	}
	return privileged.StatusError, nil
}

// NewGigabyte drives gigabyte_laptop charge_mode and charge_limit.
func NewGigabyte(env Env) *Driver {
	desc := variableEndOnly("Gigabyte Laptop", 28)
	desc.EndRanges.MaxLife.Min = 60
	return newDriver(env, family{
		desc: desc,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(gigabyteModePath) || !d.env.FS.FileExists(gigabyteLimitPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&gigabyteBackend{fs: d.env.FS, h: d.h}}
			return true
		},
	})
}

type gigabyteBackend struct {
	fs *probe.FS
	h  *helper
}

func (b *gigabyteBackend) Name() string { return "sysfs" }

func (b *gigabyteBackend) Read(context.Context) (Reading, privileged.Status) {
	r := UnknownReading()
	r.End = b.fs.ReadFileIntOr(gigabyteLimitPath, -1)
	return r, privileged.StatusSuccess
}

// Write switches to custom charge mode first unless it is already active.
func (b *gigabyteBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	updateMode := "true"
	if b.fs.ReadFileIntOr(gigabyteModePath, -1) == 1 {
		updateMode = "false"
	}
	return b.h.run(ctx, "GIGABYTE_THRESHOLD", updateMode, itoa(t.End))
}
