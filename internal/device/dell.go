package device

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

const (
	dellPlatformPath = "/sys/devices/platform/dell-laptop"
	smbiosFallback   = "/usr/sbin/smbios-battery-ctl"
	cctkFallback     = "/opt/dell/dcc/cctk"
)

var (
	smbiosModeRe     = regexp.MustCompile(`Charging mode:\s*(\w+)`)
	smbiosIntervalRe = regexp.MustCompile(`Charging interval:\s*\((\d+),\s*(\d+)\)`)
	cctkChargeCfgRe  = regexp.MustCompile(`PrimaryBattChargeCfg=(\w+)(?::(\d+)-(\d+))?`)
)

// fixedProfileReading is what a Dell backend reports for the Adaptive and
// Express profiles, whose thresholds are managed by the firmware.
func fixedProfileReading(m Mode) Reading {
	return Reading{End: 100, Start: 95, Mode: m}
}

func chargeTypesPath(bat string) string {
	return "/sys/class/power_supply/" + bat + "/charge_types"
}

// NewDell drives Dell laptops through dell-laptop sysfs charge types,
// libsmbios or Dell Command Configure (cctk).
func NewDell(env Env) *Driver {
	desc := variableEndStart("Dell", 22, 5)
	desc.EndRanges = ecRanges.end
	desc.StartRanges = ecRanges.start
	desc.ClampGap = 5
	desc.AdaptiveMode = true
	desc.ExpressMode = true
	return newDriver(env, family{
		desc: desc,
		probe: func(_ context.Context, d *Driver) bool {
			if !d.env.FS.FileExists(dellPlatformPath) {
				return false
			}

			var backends []Backend
			if bat := d.firstBatteryWith(true); bat != "" {
				endPath, startPath := batteryPaths(bat)
				backends = append(backends, &dellSysfsBackend{
					fs: d.env.FS, h: d.h,
					chargeTypes: chargeTypesPath(bat),
					endPath:     endPath,
					startPath:   startPath,
					endStart:    "DELL_" + bat + "_END_START",
					startEnd:    "DELL_" + bat + "_START_END",
				})
			}
			if smbios := d.env.FS.ProgramOr("smbios-battery-ctl", smbiosFallback); smbios != "" {
				backends = append(backends, &smbiosBackend{h: d.h, tool: smbios})
			}
			if cctk := d.env.FS.ProgramOr("cctk", cctkFallback); cctk != "" {
				backends = append(backends, &cctkBackend{
					h: d.h, tool: cctk,
					settings: d.env.Settings, secrets: d.env.Secrets, logger: d.logger,
				})
			}
			if len(backends) == 0 {
				return false
			}
			d.publishBackends(backends)
			return true
		},
	})
}

// dellSysfsBackend selects the charge type and, for Custom, the
// thresholds in a single helper call.
type dellSysfsBackend struct {
	fs          *probe.FS
	h           *helper
	chargeTypes string
	endPath     string
	startPath   string
	endStart    string
	startEnd    string
}

func (b *dellSysfsBackend) Name() string { return "sysfs" }

func (b *dellSysfsBackend) Read(context.Context) (Reading, privileged.Status) {
	s, _ := b.fs.ReadFile(b.chargeTypes)
	switch probe.BracketToken(s) {
	case "Adaptive":
		return fixedProfileReading(ModeAdaptive), privileged.StatusSuccess
	case "Fast":
		return fixedProfileReading(ModeExpress), privileged.StatusSuccess
	case "Custom":
		return Reading{
			End:   b.fs.ReadFileIntOr(b.endPath, -1),
			Start: b.fs.ReadFileIntOr(b.startPath, -1),
		}, privileged.StatusSuccess
	default:
		return UnknownReading(), privileged.StatusSuccess
	}
}

func (b *dellSysfsBackend) Write(ctx context.Context, t Target, prev Reading) (privileged.Status, *string) {
	cmd := orderedCommand(t, prev, b.endStart, b.startEnd)
	if t.Mode.Fixed() {
		return b.h.run(ctx, cmd, string(t.Mode))
	}
	return b.h.run(ctx, cmd, string(t.Mode), itoa(t.End), itoa(t.Start))
}

// smbiosBackend uses smbios-battery-ctl from libsmbios.
type smbiosBackend struct {
	h    *helper
	tool string
}

func (b *smbiosBackend) Name() string { return "libsmbios" }

func (b *smbiosBackend) Traits() Traits { return Traits{NoGraceRetry: true} }

func (b *smbiosBackend) Read(ctx context.Context) (Reading, privileged.Status) {
	status, out := b.h.run(ctx, "DELL_SMBIOS_READ", b.tool)
	if status != privileged.StatusSuccess {
		return UnknownReading(), status
	}
	return parseSmbios(deref(out)), status
}

func parseSmbios(out string) Reading {
	m := smbiosModeRe.FindStringSubmatch(out)
	if m == nil {
		return UnknownReading()
	}
	switch m[1] {
	case "adaptive":
		return fixedProfileReading(ModeAdaptive)
	case "express":
		return fixedProfileReading(ModeExpress)
	case "custom":
		r := UnknownReading()
		if iv := smbiosIntervalRe.FindStringSubmatch(out); iv != nil {
			r.Start = atoiOr(iv[1], -1)
			r.End = atoiOr(iv[2], -1)
		}
		return r
	default:
		return UnknownReading()
	}
}

func (b *smbiosBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	if t.Mode.Fixed() {
		return b.h.run(ctx, "DELL_SMBIOS_WRITE", b.tool, string(t.Mode))
	}
	return b.h.run(ctx, "DELL_SMBIOS_WRITE", b.tool, itoa(t.Start), itoa(t.End))
}

// cctkBackend uses Dell Command Configure. Writes may need the BIOS
// password, which is kept in the secret store.
type cctkBackend struct {
	h        *helper
	tool     string
	settings config.Store
	secrets  config.Secrets
	logger   *zap.Logger
}

func (b *cctkBackend) Name() string { return "cctk" }

func (b *cctkBackend) Traits() Traits { return Traits{NoGraceRetry: true} }

func (b *cctkBackend) Read(ctx context.Context) (Reading, privileged.Status) {
	status, out := b.h.run(ctx, "DELL_CCTK_READ", b.tool)
	if status != privileged.StatusSuccess {
		return UnknownReading(), status
	}
	return parseCctk(deref(out)), status
}

func parseCctk(out string) Reading {
	m := cctkChargeCfgRe.FindStringSubmatch(out)
	if m == nil {
		return UnknownReading()
	}
	switch m[1] {
	case "Adaptive":
		return fixedProfileReading(ModeAdaptive)
	case "Express":
		return fixedProfileReading(ModeExpress)
	case "Custom":
		return Reading{Start: atoiOr(m[2], -1), End: atoiOr(m[3], -1)}
	default:
		return UnknownReading()
	}
}

func (b *cctkBackend) Write(ctx context.Context, t Target, _ Reading) (privileged.Status, *string) {
	arg1, arg2 := string(t.Mode), ""
	if !t.Mode.Fixed() {
		arg1, arg2 = itoa(t.Start), itoa(t.End)
	}

	if !b.settings.Bool(config.KeyNeedBIOSPassword) {
		return b.h.run(ctx, "DELL_CCTK_WRITE", b.tool, arg1, arg2)
	}

	password, err := b.password()
	if err != nil {
		if !errors.Is(err, config.ErrNoPassword) {
			b.logger.Warn("Failed to look up BIOS password", zap.Error(err))
		}
		return privileged.StatusPasswordRequired, nil
	}
	return b.h.run(ctx, "DELL_CCTK_AUTH_WRITE", b.tool, password, arg1, arg2)
}

func (b *cctkBackend) password() (string, error) {
	if b.secrets == nil {
		return "", config.ErrNoPassword
	}
	password, err := b.secrets.BIOSPassword()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(password) == "" {
		return "", config.ErrNoPassword
	}
	return password, nil
}
