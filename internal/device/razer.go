package device

import (
	"context"
	"regexp"
	"strings"

	"github.com/muurk/battctl/internal/privileged"
)

var razerThresholdRe = regexp.MustCompile(`Battery health optimization is on with a threshold of (\d+)`)

// NewRazer drives battery health optimization through razer-cli. The tool
// runs unprivileged.
func NewRazer(env Env) *Driver {
	desc := variableEndOnly("Razer", 30)
	desc.NeedRoot = false
	desc.EndRanges = ModeRanges{
		Full:     Range{100, 100},
		Balanced: Range{65, 80},
		MaxLife:  Range{50, 80},
	}
	desc.IncrementsStep = 5
	desc.IncrementsPage = 10
	return newDriver(env, family{
		desc: desc,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.VendorContains("Razer") {
				return false
			}
			cli := d.env.FS.FindProgramInPath("razer-cli")
			if cli == "" {
				return false
			}
			d.lanes[0].backends = []Backend{&razerBackend{h: d.h, cli: cli}}
			return true
		},
	})
}

type razerBackend struct {
	h   *helper
	cli string
}

func (b *razerBackend) Name() string { return "razer-cli" }

// Read never fails the apply: an unreadable state is just unknown.
func (b *razerBackend) Read(ctx context.Context) (Reading, privileged.Status) {
	_, out := b.h.exec(ctx, b.cli, "read", "bho")
	if out == nil {
		return UnknownReading(), privileged.StatusSuccess
	}
	return parseRazer(*out, "Battery health optimization is off"), privileged.StatusSuccess
}

// Write judges razer-cli by what it prints, so exit codes are ignored. A
// call that never completed keeps its status.
func (b *razerBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	argv := []string{b.cli, "write", "bho", "on", itoa(t.End)}
	if t.End == 100 {
		argv = []string{b.cli, "write", "bho", "off"}
	}
	status, out := b.h.exec(ctx, argv...)
	if out == nil || status == privileged.StatusTimeout {
		return status, nil
	}
	return privileged.StatusSuccess, out
}

func (b *razerBackend) ReadOutput(out string) Reading {
	return parseRazer(out, "Successfully turned off bho")
}

func parseRazer(out, offMarker string) Reading {
	r := UnknownReading()
	if strings.Contains(out, offMarker) {
		r.End = 100
		return r
	}
	if m := razerThresholdRe.FindStringSubmatch(out); m != nil {
		r.End = atoiOr(m[1], -1)
	}
	return r
}
