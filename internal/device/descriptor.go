package device

// Range is an inclusive percentage range offered to the user.
type Range struct {
	Min int
	Max int
}

// ModeRanges holds one range per threshold mode.
type ModeRanges struct {
	Full     Range
	Balanced Range
	MaxLife  Range
}

// For returns the range for mode and whether the mode has one.
func (r ModeRanges) For(m Mode) (Range, bool) {
	switch m {
	case ModeFull:
		return r.Full, true
	case ModeBalanced:
		return r.Balanced, true
	case ModeMaxLife:
		return r.MaxLife, true
	default:
		return Range{}, false
	}
}

// Icons are presentation hints per mode. The core passes them through.
type Icons struct {
	Full     string
	Balanced string
	MaxLife  string
}

// Descriptor is the capability metadata of a driver. It is fixed once the
// driver is constructed.
type Descriptor struct {
	Name     string
	Type     int
	NeedRoot bool

	DualBattery       bool
	StartThreshold    bool
	VariableThreshold bool
	BalancedMode      bool
	AdaptiveMode      bool
	ExpressMode       bool
	ModeNotValue      bool

	EndRanges   ModeRanges
	StartRanges ModeRanges

	// MinDiffLimit is the smallest allowed end-start gap.
	MinDiffLimit int
	// ClampGap, when set, replaces MinDiffLimit when clamping the start
	// threshold of a requested target.
	ClampGap int

	IncrementsStep int
	IncrementsPage int

	Icons Icons
}

// SupportsMode reports whether the device offers mode.
func (d Descriptor) SupportsMode(m Mode) bool {
	switch m {
	case ModeFull, ModeMaxLife:
		return true
	case ModeBalanced:
		return d.BalancedMode
	case ModeAdaptive:
		return d.AdaptiveMode
	case ModeExpress:
		return d.ExpressMode
	default:
		return false
	}
}

// Modes lists the supported modes in display order.
func (d Descriptor) Modes() []Mode {
	var modes []Mode
	for _, m := range []Mode{ModeFull, ModeBalanced, ModeMaxLife, ModeAdaptive, ModeExpress} {
		if d.SupportsMode(m) {
			modes = append(modes, m)
		}
	}
	return modes
}

func (d Descriptor) clampGap() int {
	if d.ClampGap > 0 {
		return d.ClampGap
	}
	return d.MinDiffLimit
}

// Range sets shared by most drivers.
var (
	standardEndRanges = ModeRanges{
		Full:     Range{80, 100},
		Balanced: Range{65, 85},
		MaxLife:  Range{50, 85},
	}
	standardStartRanges = ModeRanges{
		Full:     Range{75, 98},
		Balanced: Range{60, 83},
		MaxLife:  Range{40, 83},
	}
	standardIcons = Icons{Full: "100", Balanced: "080", MaxLife: "060"}
	toggleIcons   = Icons{Full: "100", MaxLife: "080"}
)

// variableEndOnly is the descriptor shape of devices with a settable end
// threshold and no start threshold.
func variableEndOnly(name string, typ int) Descriptor {
	return Descriptor{
		Name:              name,
		Type:              typ,
		NeedRoot:          true,
		VariableThreshold: true,
		BalancedMode:      true,
		EndRanges:         standardEndRanges,
		IncrementsStep:    1,
		IncrementsPage:    5,
		Icons:             standardIcons,
	}
}

// variableEndStart is the descriptor shape of devices with settable start
// and end thresholds.
func variableEndStart(name string, typ int, minDiff int) Descriptor {
	d := variableEndOnly(name, typ)
	d.StartThreshold = true
	d.StartRanges = standardStartRanges
	d.MinDiffLimit = minDiff
	return d
}

// toggle is the descriptor shape of devices with a fixed on/off limit.
func toggle(name string, typ int) Descriptor {
	return Descriptor{
		Name:     name,
		Type:     typ,
		NeedRoot: true,
		Icons:    toggleIcons,
	}
}
