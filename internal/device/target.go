package device

import (
	"fmt"

	"github.com/muurk/battctl/internal/config"
)

// Target is the hardware state a mode resolves to.
type Target struct {
	Mode Mode
	// End is -1 for fixed profile modes.
	End int
	// Start is -1 when the device has no start threshold.
	Start int
}

func (t Target) String() string {
	switch {
	case t.Mode.Fixed():
		return string(t.Mode)
	case t.Start >= 0:
		return fmt.Sprintf("%s %d-%d%%", t.Mode, t.Start, t.End)
	default:
		return fmt.Sprintf("%s %d%%", t.Mode, t.End)
	}
}

// Reading is a snapshot of what a backend read back. Unknown values are -1.
type Reading struct {
	End   int
	Start int
	// Mode is set when the hardware reports a fixed profile instead of
	// custom thresholds.
	Mode Mode
}

// UnknownReading is the reading of a backend that could not be parsed.
func UnknownReading() Reading {
	return Reading{End: -1, Start: -1}
}

// Matches reports whether r shows the hardware at t.
func (t Target) Matches(r Reading) bool {
	if t.Mode.Fixed() {
		return r.Mode == t.Mode
	}
	if r.Mode.Fixed() {
		return false
	}
	if r.End < 0 || r.End != t.End {
		return false
	}
	if t.Start >= 0 && r.Start != t.Start {
		return false
	}
	return true
}

// resolveTarget computes the target for mode on battery from the settings.
// levels, when set, pins the end value per mode for devices without a
// user-settable threshold.
func resolveTarget(d Descriptor, settings config.Store, battery int, mode Mode, levels map[Mode]int) Target {
	if mode.Fixed() {
		return Target{Mode: mode, End: -1, Start: -1}
	}

	t := Target{Mode: mode, End: -1, Start: -1}
	if levels != nil {
		if v, ok := levels[mode]; ok {
			t.End = v
		}
		return t
	}

	t.End = settings.Int(config.EndThresholdKey(string(mode), battery))
	if d.StartThreshold {
		t.Start = settings.Int(config.StartThresholdKey(string(mode), battery))
		if gap := d.clampGap(); gap > 0 && t.End-t.Start < gap {
			t.Start = t.End - gap
		}
	}
	return t
}
