package device

import (
	"context"
	"strconv"
	"strings"

	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

// Backend is one mechanism for reading and writing a battery's charge
// policy. Drivers with several mechanisms hold one Backend per mechanism.
type Backend interface {
	// Name is the configuration-mode identifier (sysfs, cctk, ectool...).
	Name() string

	// Read returns the current hardware state. A non-success status is a
	// channel failure; an unparsable answer is UnknownReading with
	// StatusSuccess.
	Read(ctx context.Context) (Reading, privileged.Status)

	// Write moves the hardware towards t. prev is the latest reading and
	// decides command ordering on devices that need it.
	Write(ctx context.Context, t Target, prev Reading) (privileged.Status, *string)
}

// Traits adjust the write/verify protocol for a backend.
type Traits struct {
	// NoPreVerify writes without reading first.
	NoPreVerify bool
	// NoGraceRetry skips the settle delay and second read.
	NoGraceRetry bool
}

type traitsProvider interface {
	Traits() Traits
}

// outputReader is implemented by backends whose write command prints the
// resulting state. The output replaces the read-back.
type outputReader interface {
	ReadOutput(out string) Reading
}

// mismatchResolver lets a backend turn a final mismatch into another
// outcome.
type mismatchResolver interface {
	ResolveMismatch(t Target, r Reading) (Reading, Outcome, bool)
}

// verifier is implemented by backends whose hardware carries state a
// Reading cannot hold. It replaces Target.Matches for that backend.
type verifier interface {
	Verify(t Target, r Reading) bool
}

func matches(b Backend, t Target, r Reading) bool {
	if v, ok := b.(verifier); ok {
		return v.Verify(t, r)
	}
	return t.Matches(r)
}

func traitsOf(b Backend) Traits {
	if tp, ok := b.(traitsProvider); ok {
		return tp.Traits()
	}
	return Traits{}
}

// orderedCommand picks between the end-first and start-first command.
// Some firmware silently rejects a start threshold above the current end
// threshold, so when the new start reaches the old end the end goes first.
func orderedCommand(t Target, prev Reading, endStart, startEnd string) string {
	if t.Start >= prev.End {
		return endStart
	}
	return startEnd
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

// sysfsEnd reads a single end threshold file and writes it with one
// helper command.
type sysfsEnd struct {
	fs      *probe.FS
	h       *helper
	endPath string
	command string
}

func (b *sysfsEnd) Name() string { return "sysfs" }

func (b *sysfsEnd) Read(context.Context) (Reading, privileged.Status) {
	r := UnknownReading()
	r.End = b.fs.ReadFileIntOr(b.endPath, -1)
	return r, privileged.StatusSuccess
}

func (b *sysfsEnd) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	return b.h.run(ctx, b.command, itoa(t.End))
}

// sysfsEndStart reads end and start threshold files and writes both with
// an ordered command pair.
type sysfsEndStart struct {
	fs        *probe.FS
	h         *helper
	endPath   string
	startPath string
	endStart  string
	startEnd  string
	traits    Traits
}

func (b *sysfsEndStart) Name() string { return "sysfs" }

func (b *sysfsEndStart) Traits() Traits { return b.traits }

func (b *sysfsEndStart) Read(context.Context) (Reading, privileged.Status) {
	return Reading{
		End:   b.fs.ReadFileIntOr(b.endPath, -1),
		Start: b.fs.ReadFileIntOr(b.startPath, -1),
	}, privileged.StatusSuccess
}

func (b *sysfsEndStart) Write(ctx context.Context, t Target, prev Reading) (privileged.Status, *string) {
	cmd := orderedCommand(t, prev, b.endStart, b.startEnd)
	return b.h.run(ctx, cmd, itoa(t.End), itoa(t.Start))
}

// batteryPaths returns the sysfs threshold paths of BAT0 or BAT1.
func batteryPaths(bat string) (end, start string) {
	base := "/sys/class/power_supply/" + bat + "/"
	return base + "charge_control_end_threshold", base + "charge_control_start_threshold"
}

func capacityPath(bat string) string {
	return "/sys/class/power_supply/" + bat + "/capacity"
}

// valueMap translates between the end percentage and a raw file value.
type valueMap struct {
	toRaw   map[int]int
	fromRaw map[int]int
}

func newValueMap(pairs ...[2]int) valueMap {
	m := valueMap{toRaw: make(map[int]int), fromRaw: make(map[int]int)}
	for _, p := range pairs {
		m.toRaw[p[0]] = p[1]
		m.fromRaw[p[1]] = p[0]
	}
	return m
}

// mappedFile is a sysfs attribute holding a vendor specific value for
// each end percentage (a 0/1 toggle, or a care limit where 0 means off).
type mappedFile struct {
	fs      *probe.FS
	h       *helper
	path    string
	command string
	values  valueMap
}

func (b *mappedFile) Name() string { return "sysfs" }

func (b *mappedFile) Read(context.Context) (Reading, privileged.Status) {
	r := UnknownReading()
	raw, ok := b.fs.ReadFileInt(b.path)
	if !ok {
		return r, privileged.StatusSuccess
	}
	if end, ok := b.values.fromRaw[raw]; ok {
		r.End = end
	}
	return r, privileged.StatusSuccess
}

func (b *mappedFile) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	raw, ok := b.values.toRaw[t.End]
	if !ok {
		return privileged.StatusError, nil
	}
	return b.h.run(ctx, b.command, itoa(raw))
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
