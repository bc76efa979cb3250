package device

import (
	"context"
	"regexp"

	"github.com/muurk/battctl/internal/privileged"
)

const (
	frameworkToolFallback = "/usr/bin/framework_tool"
	crosECPath            = "/dev/cros_ec"
)

var frameworkToolRe = regexp.MustCompile(`Minimum 0%, Maximum (\d+)%`)

// NewFramework drives Framework laptops without a start threshold, either
// through the framework_laptop sysfs node or framework_tool.
func NewFramework(env Env) *Driver {
	return newDriver(env, family{
		desc: variableEndOnly("Framework", 31),
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.VendorContains("Framework") {
				return false
			}
			endPath, startPath := batteryPaths("BAT1")
			// Start threshold support is handled by NewFrameworkEndStart.
			if d.env.FS.FileExists(startPath) {
				return false
			}

			var backends []Backend
			if d.env.FS.FileExists(endPath) {
				backends = append(backends, &sysfsEnd{fs: d.env.FS, h: d.h, endPath: endPath, command: "BAT1_END"})
			}
			if tool := d.env.FS.ProgramOr("framework_tool", frameworkToolFallback); tool != "" {
				driver := "portio"
				if d.env.FS.FileExists(crosECPath) {
					driver = "cros-ec"
				}
				backends = append(backends, &frameworkToolBackend{h: d.h, tool: tool, driver: driver})
			}
			if len(backends) == 0 {
				return false
			}
			d.publishBackends(backends)
			return true
		},
	})
}

// frameworkToolBackend reads the EC charge limit with a privileged query
// and takes the write output as the read-back.
type frameworkToolBackend struct {
	h      *helper
	tool   string
	driver string
}

func (b *frameworkToolBackend) Name() string { return "framework-tool" }

func (b *frameworkToolBackend) Read(ctx context.Context) (Reading, privileged.Status) {
	status, out := b.h.run(ctx, "FRAMEWORK_TOOL_THRESHOLD_READ", b.tool, b.driver)
	if status != privileged.StatusSuccess {
		return UnknownReading(), status
	}
	return b.ReadOutput(deref(out)), status
}

func (b *frameworkToolBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	return b.h.run(ctx, "FRAMEWORK_TOOL_THRESHOLD_WRITE", b.tool, b.driver, itoa(t.End))
}

func (b *frameworkToolBackend) ReadOutput(out string) Reading {
	r := UnknownReading()
	if m := frameworkToolRe.FindStringSubmatch(out); m != nil {
		r.End = atoiOr(m[1], -1)
	}
	return r
}

// NewFrameworkEndStart drives Framework laptops whose kernel exposes both
// BAT1 thresholds.
func NewFrameworkEndStart(env Env) *Driver {
	desc := variableEndStart("FrameworkEndStartLimit", 36, 1)
	desc.EndRanges.MaxLife.Min = 55
	desc.StartRanges = ModeRanges{
		Full:     Range{75, 99},
		Balanced: Range{60, 84},
		MaxLife:  Range{50, 84},
	}
	return newDriver(env, family{
		desc: desc,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.VendorContains("Framework") {
				return false
			}
			endPath, startPath := batteryPaths("BAT1")
			if !d.env.FS.FileExists(startPath) || !d.env.FS.FileExists(endPath) {
				return false
			}
			d.lanes[0].backends = []Backend{&sysfsEndStart{
				fs: d.env.FS, h: d.h, endPath: endPath, startPath: startPath,
				endStart: "BAT1_END_START", startEnd: "BAT1_START_END",
			}}
			return true
		},
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
