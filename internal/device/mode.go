package device

import "fmt"

// Mode is a named charging policy.
type Mode string

const (
	ModeFull     Mode = "ful"
	ModeBalanced Mode = "bal"
	ModeMaxLife  Mode = "max"
	ModeAdaptive Mode = "adv"
	ModeExpress  Mode = "exp"
)

// ParseMode validates a mode identifier.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFull, ModeBalanced, ModeMaxLife, ModeAdaptive, ModeExpress:
		return m, nil
	default:
		return "", fmt.Errorf("unknown charging mode %q (want ful, bal, max, adv or exp)", s)
	}
}

// Fixed reports whether the mode is a firmware profile marker rather than a
// threshold pair.
func (m Mode) Fixed() bool {
	return m == ModeAdaptive || m == ModeExpress
}

// Label returns a human readable name.
func (m Mode) Label() string {
	switch m {
	case ModeFull:
		return "Full Capacity"
	case ModeBalanced:
		return "Balanced"
	case ModeMaxLife:
		return "Maximum Lifespan"
	case ModeAdaptive:
		return "Adaptive"
	case ModeExpress:
		return "Express"
	default:
		return string(m)
	}
}
