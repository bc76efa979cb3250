package device

import (
	"context"
	"regexp"

	"github.com/muurk/battctl/internal/privileged"
)

var ectoolSustainerRe = regexp.MustCompile(`Battery sustainer = on \((\d+)% ~ (\d+)%\)`)

// ecRanges are the thresholds accepted by ChromeOS EC based firmware.
var ecRanges = struct {
	end, start ModeRanges
}{
	end: ModeRanges{
		Full:     Range{80, 100},
		Balanced: Range{65, 85},
		MaxLife:  Range{55, 85},
	},
	start: ModeRanges{
		Full:     Range{75, 95},
		Balanced: Range{60, 80},
		MaxLife:  Range{50, 80},
	},
}

// NewChromebook drives the ChromeOS EC battery sustainer through the
// cros_charge-control sysfs node or ectool. The sustainer needs a gap of
// at least 5% between start and end.
func NewChromebook(env Env) *Driver {
	desc := variableEndStart("Chromebook", 35, 2)
	desc.EndRanges = ecRanges.end
	desc.StartRanges = ecRanges.start
	desc.ClampGap = 5
	return newDriver(env, family{
		desc: desc,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.VendorContains("Google") {
				return false
			}

			var backends []Backend
			if bat := d.firstBatteryWith(false); bat != "" {
				endPath, startPath := batteryPaths(bat)
				backends = append(backends, &sysfsEndStart{
					fs: d.env.FS, h: d.h, endPath: endPath, startPath: startPath,
					endStart: bat + "_END_START", startEnd: bat + "_START_END",
				})
			}
			if ectool := d.env.FS.FindValidProgramInPath("ectool"); ectool != "" {
				backends = append(backends, &ectoolBackend{h: d.h, tool: ectool})
			}
			if len(backends) == 0 {
				return false
			}
			d.publishBackends(backends)
			return true
		},
	})
}

// firstBatteryWith returns BAT0 or BAT1, whichever exposes both threshold
// files, or "". With chargeTypes the charge_types selector is required
// instead.
func (d *Driver) firstBatteryWith(chargeTypes bool) string {
	for _, bat := range []string{"BAT0", "BAT1"} {
		if chargeTypes {
			if d.env.FS.FileExists(chargeTypesPath(bat)) {
				return bat
			}
			continue
		}
		endPath, startPath := batteryPaths(bat)
		if d.env.FS.FileExists(endPath) && d.env.FS.FileExists(startPath) {
			return bat
		}
	}
	return ""
}

type ectoolBackend struct {
	h    *helper
	tool string
}

func (b *ectoolBackend) Name() string { return "ectool" }

func (b *ectoolBackend) Traits() Traits { return Traits{NoGraceRetry: true} }

func (b *ectoolBackend) Read(ctx context.Context) (Reading, privileged.Status) {
	status, out := b.h.run(ctx, "ECTOOL_THRESHOLD_READ", b.tool)
	if status != privileged.StatusSuccess {
		return UnknownReading(), status
	}
	r := UnknownReading()
	if m := ectoolSustainerRe.FindStringSubmatch(deref(out)); m != nil {
		r.Start = atoiOr(m[1], -1)
		r.End = atoiOr(m[2], -1)
	}
	return r, status
}

func (b *ectoolBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	return b.h.run(ctx, "ECTOOL_THRESHOLD_WRITE", b.tool, itoa(t.Start), itoa(t.End))
}
