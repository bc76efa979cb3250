package device

import (
	"context"
	"strings"
	"testing"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

func TestMsi_AppliesEndThreshold(t *testing.T) {
	rig := newRig(t)
	endPath, _ := batteryPaths("BAT0")
	rig.write(t, msiPlatformPath+"fw_version", "1")
	rig.write(t, endPath, "100\n")
	rig.cmd.on("BAT0_END", rig.writesFile(endPath, 3))
	_ = rig.settings.SetInt(config.EndThresholdKey("max", 1), 80)

	d := rig.driver(t, NewMsiBAT0)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeMaxLife); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	want := []string{"pkexec", testCtlPath, "BAT0_END", "80"}
	if len(calls) != 1 || !equalArgv(calls[0], want) {
		t.Fatalf("Expected %v, got %v", want, calls)
	}
	if got := d.State().EndLimit; got != 80 {
		t.Errorf("Expected end limit 80, got %d", got)
	}

	// The second identical request is answered from the pre-read.
	if status := d.SetThresholdLimit(context.Background(), ModeMaxLife); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	if got := len(rig.cmd.Calls()); got != 1 {
		t.Errorf("Expected no further helper calls, got %d total", got)
	}
	outcomes := rig.rec.Outcomes()
	if len(outcomes) != 2 || outcomes[0] != OutcomeSuccess || outcomes[1] != OutcomeSuccess {
		t.Errorf("Expected [success success], got %v", outcomes)
	}
}

func TestCatalog_ProbingIsReadOnly(t *testing.T) {
	rig := newRig(t)
	rig.write(t, probe.DMIVendorPath, "Framework Google Dell System76 Razer\n")
	rig.write(t, thinkpadACPIPath+"/uevent", "")
	rig.write(t, dellPlatformPath+"/uevent", "")
	rig.write(t, toshibaModulePath+"/version", "")
	rig.write(t, appleSMCModulePath+"/version", "")
	rig.write(t, chargeTypesPath("BAT0"), "[Custom] Adaptive Fast")
	for _, bat := range []string{"BAT0", "BAT1"} {
		end, start := batteryPaths(bat)
		rig.write(t, end, "100")
		rig.write(t, start, "95")
	}
	rig.writeMode(t, "/usr/bin/ectool", "", 0o755)
	rig.writeMode(t, "/usr/bin/cctk", "", 0o755)
	rig.writeMode(t, "/usr/bin/razer-cli", "", 0o755)
	rig.setPath("/usr/bin")

	available := 0
	for _, c := range Catalog() {
		d := c(rig.env)
		if d.IsAvailable(context.Background()) {
			available++
		}
		d.Destroy()
	}
	if available == 0 {
		t.Fatal("Expected some drivers to match the fake host")
	}
	if calls := rig.cmd.Calls(); len(calls) != 0 {
		t.Errorf("Expected no helper calls while probing, got %v", calls)
	}
}

func TestCatalog_TypesAscendAndUnique(t *testing.T) {
	seen := make(map[int]bool)
	last := 0
	for _, c := range Catalog() {
		d := c(Env{})
		typ := d.Type()
		d.Destroy()
		if seen[typ] {
			t.Errorf("Duplicate type %d", typ)
		}
		if typ <= last {
			t.Errorf("Expected ascending types, got %d after %d", typ, last)
		}
		seen[typ] = true
		last = typ
	}
}

func TestToshiba_DischargeBattery(t *testing.T) {
	rig := newRig(t)
	endPath, _ := batteryPaths("BAT0")
	rig.write(t, toshibaModulePath+"/version", "1")
	rig.write(t, endPath, "100")
	rig.write(t, capacityPath("BAT0"), "85")

	d := rig.driver(t, NewToshibaBAT0)
	mustAvailable(t, d)

	// The firmware keeps 100 while the battery is above 80%.
	status := d.SetThresholdLimit(context.Background(), ModeMaxLife)
	if status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	if len(calls) != 1 || !equalArgv(calls[0], []string{"pkexec", testCtlPath, "BAT0_END", "80"}) {
		t.Errorf("Expected a single BAT0_END 80 write, got %v", calls)
	}
	if got := rig.rec.Outcomes(); len(got) != 1 || got[0] != OutcomeDischargeBattery {
		t.Errorf("Expected [discharge-battery], got %v", got)
	}
	if got := d.State().EndLimit; got != 100 {
		t.Errorf("Expected end limit 100, got %d", got)
	}
}

func TestToshiba_LowCapacityIsNotUpdated(t *testing.T) {
	rig := newRig(t)
	endPath, _ := batteryPaths("BAT1")
	rig.write(t, toshibaModulePath+"/version", "1")
	rig.write(t, endPath, "100")
	rig.write(t, capacityPath("BAT1"), "50")

	d := rig.driver(t, NewToshibaBAT1)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeMaxLife); status != privileged.StatusError {
		t.Errorf("Expected error, got %v", status)
	}
	if got := rig.rec.Outcomes(); len(got) != 1 || got[0] != OutcomeNotUpdated {
		t.Errorf("Expected [not-updated], got %v", got)
	}
}

func TestToggleDevices_WriteRawValues(t *testing.T) {
	tests := []struct {
		name    string
		ctor    Constructor
		path    string
		command string
		mode    Mode
		initial string
		want    string
	}{
		{"lg", NewLG, lgCareLimitPath, "LG", ModeMaxLife, "100", "80"},
		{"samsung", NewSamsung, samsungExtenderPath, "SAMSUNG", ModeMaxLife, "0", "1"},
		{"acer", NewAcer, acerHealthModePath, "ACER", ModeFull, "1", "0"},
		{"panasonic", NewPanasonic, panasonicEcoModePath, "PANASONIC", ModeMaxLife, "0", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t)
			rig.write(t, tt.path, tt.initial)
			rig.cmd.on(tt.command, rig.writesFile(tt.path, 3))

			d := rig.driver(t, tt.ctor)
			mustAvailable(t, d)

			if status := d.SetThresholdLimit(context.Background(), tt.mode); status != privileged.StatusSuccess {
				t.Fatalf("Expected success, got %v", status)
			}
			calls := rig.cmd.Calls()
			want := []string{"pkexec", testCtlPath, tt.command, tt.want}
			if len(calls) != 1 || !equalArgv(calls[0], want) {
				t.Errorf("Expected %v, got %v", want, calls)
			}
			if got := d.State().Mode; got != tt.mode {
				t.Errorf("Expected mode %s, got %s", tt.mode, got)
			}
		})
	}
}

func TestTuxedo_ProfileWrite(t *testing.T) {
	rig := newRig(t)
	rig.write(t, tuxedoProfilesPath, tuxedoExpectedProfile+"\n")
	rig.write(t, tuxedoProfilePath, "high_capacity\n")
	rig.cmd.on("TUXEDO", rig.writesFile(tuxedoProfilePath, 3))

	d := rig.driver(t, NewTuxedo)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeBalanced); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	if len(calls) != 1 || !equalArgv(calls[0], []string{"pkexec", testCtlPath, "TUXEDO", "balanced"}) {
		t.Errorf("Expected TUXEDO balanced, got %v", calls)
	}
	if got := d.State().EndLimit; got != 90 {
		t.Errorf("Expected end limit 90, got %d", got)
	}
}

func TestTuxedo_RequiresKnownProfiles(t *testing.T) {
	rig := newRig(t)
	rig.write(t, tuxedoProfilesPath, "high_capacity stationary\n")
	rig.write(t, tuxedoProfilePath, "high_capacity\n")

	d := rig.driver(t, NewTuxedo)
	if d.IsAvailable(context.Background()) {
		t.Error("Expected unknown profile set to be rejected")
	}
}

func TestSony_ExpressMode(t *testing.T) {
	rig := newRig(t)
	rig.write(t, sonyLimiterPath, "80")
	rig.write(t, sonyHighspeedPath, "0")
	rig.cmd.on("SONY", func(argv []string) (privileged.Status, string) {
		rig.write(t, sonyLimiterPath, argv[3])
		switch argv[4] {
		case "on":
			rig.write(t, sonyHighspeedPath, "1")
		case "off":
			rig.write(t, sonyHighspeedPath, "0")
		}
		return privileged.StatusSuccess, ""
	})

	d := rig.driver(t, NewSony)
	if !d.Descriptor().ExpressMode {
		t.Fatal("Expected express mode with high speed charging present")
	}
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeExpress); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	if status := d.SetThresholdLimit(context.Background(), ModeBalanced); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}

	calls := rig.cmd.Calls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 calls, got %v", calls)
	}
	if !equalArgv(calls[0], []string{"pkexec", testCtlPath, "SONY", "0", "on"}) {
		t.Errorf("Unexpected express write %v", calls[0])
	}
	if !equalArgv(calls[1], []string{"pkexec", testCtlPath, "SONY", "80", "off"}) {
		t.Errorf("Unexpected balanced write %v", calls[1])
	}
}

func sonyFirmware(t *testing.T, rig *testRig) func([]string) (privileged.Status, string) {
	return func(argv []string) (privileged.Status, string) {
		rig.write(t, sonyLimiterPath, argv[3])
		switch argv[4] {
		case "on":
			rig.write(t, sonyHighspeedPath, "1")
		case "off":
			rig.write(t, sonyHighspeedPath, "0")
		}
		return privileged.StatusSuccess, ""
	}
}

func TestSony_ExpressNeedsLimiterCleared(t *testing.T) {
	rig := newRig(t)
	rig.write(t, sonyLimiterPath, "80")
	rig.write(t, sonyHighspeedPath, "1")
	rig.cmd.on("SONY", sonyFirmware(t, rig))

	d := rig.driver(t, NewSony)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeExpress); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	if len(calls) != 1 || !equalArgv(calls[0], []string{"pkexec", testCtlPath, "SONY", "0", "on"}) {
		t.Errorf("Expected SONY 0 on, got %v", calls)
	}
	if got := d.State().Mode; got != ModeExpress {
		t.Errorf("Expected mode %v, got %v", ModeExpress, got)
	}
	if got := rig.readInt(t, sonyLimiterPath); got != 0 {
		t.Errorf("Expected limiter cleared, got %d", got)
	}
}

func TestSony_BalancedTurnsHighspeedOff(t *testing.T) {
	rig := newRig(t)
	rig.write(t, sonyLimiterPath, "80")
	rig.write(t, sonyHighspeedPath, "1")
	rig.cmd.on("SONY", sonyFirmware(t, rig))

	d := rig.driver(t, NewSony)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeBalanced); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	if len(calls) != 1 || !equalArgv(calls[0], []string{"pkexec", testCtlPath, "SONY", "80", "off"}) {
		t.Errorf("Expected SONY 80 off, got %v", calls)
	}
	if got := rig.readInt(t, sonyHighspeedPath); got != 0 {
		t.Errorf("Expected high speed charging off, got %d", got)
	}
}

func TestSony_HighspeedUntouchedWhenUnchanged(t *testing.T) {
	rig := newRig(t)
	rig.write(t, sonyLimiterPath, "0")
	rig.cmd.on("SONY", rig.writesFile(sonyLimiterPath, 3))

	d := rig.driver(t, NewSony)
	mustAvailable(t, d)

	d.SetThresholdLimit(context.Background(), ModeMaxLife)
	calls := rig.cmd.Calls()
	if len(calls) != 1 || !equalArgv(calls[0], []string{"pkexec", testCtlPath, "SONY", "50", "unsupported"}) {
		t.Errorf("Expected SONY 50 unsupported, got %v", calls)
	}
}

func TestHuawei_CombinedFile(t *testing.T) {
	rig := newRig(t)
	rig.write(t, huaweiThresholdsPath, "0 100\n")
	rig.cmd.on("HUAWEI", func(argv []string) (privileged.Status, string) {
		rig.write(t, huaweiThresholdsPath, argv[4]+" "+argv[3]+"\n")
		return privileged.StatusSuccess, ""
	})

	d := rig.driver(t, NewHuawei)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeBalanced); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	s := d.State()
	if s.EndLimit != 80 || s.StartLimit != 75 {
		t.Errorf("Expected 75-80, got %d-%d", s.StartLimit, s.EndLimit)
	}
}

func TestGigabyte_UpdateModeFlag(t *testing.T) {
	rig := newRig(t)
	rig.write(t, gigabyteModePath, "1")
	rig.write(t, gigabyteLimitPath, "100")
	rig.cmd.on("GIGABYTE_THRESHOLD", rig.writesFile(gigabyteLimitPath, 4))

	d := rig.driver(t, NewGigabyte)
	mustAvailable(t, d)
	d.SetThresholdLimit(context.Background(), ModeBalanced)

	calls := rig.cmd.Calls()
	if len(calls) != 1 || !equalArgv(calls[0], []string{"pkexec", testCtlPath, "GIGABYTE_THRESHOLD", "false", "80"}) {
		t.Errorf("Expected custom mode to be left alone, got %v", calls)
	}
}

func TestAppleLEDValue(t *testing.T) {
	tests := []struct {
		end     int
		led     bool
		changed bool
		want    int
	}{
		{100, true, false, 95},
		{97, true, false, 95},
		{80, true, false, 78},
		{80, false, false, 0},
		{80, false, true, 95},
		{80, true, true, 78},
	}
	for _, tt := range tests {
		if got := appleLEDValue(tt.end, tt.led, tt.changed); got != tt.want {
			t.Errorf("appleLEDValue(%d, %v, %v): expected %d, got %d", tt.end, tt.led, tt.changed, tt.want, got)
		}
	}
}

func TestApple_LEDChangeReapplies(t *testing.T) {
	rig := newRig(t)
	endPath, _ := batteryPaths("BAT0")
	rig.write(t, appleSMCModulePath+"/version", "1")
	rig.write(t, endPath, "100")
	rig.cmd.on("APPLE", rig.writesFile(endPath, 3))

	d := rig.driver(t, NewApple)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeFull); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	if got := len(rig.cmd.Calls()); got != 0 {
		t.Fatalf("Expected matching threshold to skip the helper, got %d calls", got)
	}

	// The threshold already matches, yet the LED change must be written.
	_ = rig.settings.SetBool(config.KeyAppleChargingLED, false)
	waitFor(t, "LED re-apply", func() bool { return len(rig.cmd.Calls()) == 1 })

	calls := rig.cmd.Calls()
	if !equalArgv(calls[0], []string{"pkexec", testCtlPath, "APPLE", "100", "95"}) {
		t.Errorf("Expected APPLE 100 95, got %v", calls[0])
	}
}

func TestRazer_ReadAndWrite(t *testing.T) {
	rig := newRig(t)
	rig.write(t, probe.DMIVendorPath, "Razer\n")
	rig.writeMode(t, "/usr/bin/razer-cli", "", 0o755)
	rig.setPath("/usr/bin")
	rig.cmd.on("/usr/bin/razer-cli", func(argv []string) (privileged.Status, string) {
		if argv[1] == "read" {
			return privileged.StatusSuccess, "Battery health optimization is off\n"
		}
		return privileged.StatusSuccess, "Battery health optimization is on with a threshold of " + argv[4] + "\n"
	})
	_ = rig.settings.SetInt(config.EndThresholdKey("bal", 1), 80)

	d := rig.driver(t, NewRazer)
	if d.NeedsRoot() {
		t.Error("Expected razer-cli to run unprivileged")
	}
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeBalanced); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	if len(calls) != 2 {
		t.Fatalf("Expected read and write, got %v", calls)
	}
	if !equalArgv(calls[1], []string{"/usr/bin/razer-cli", "write", "bho", "on", "80"}) {
		t.Errorf("Unexpected write %v", calls[1])
	}
	if got := d.State().EndLimit; got != 80 {
		t.Errorf("Expected end limit 80, got %d", got)
	}
}

func TestRazer_WriteTimeout(t *testing.T) {
	rig := newRig(t)
	rig.write(t, probe.DMIVendorPath, "Razer\n")
	rig.writeMode(t, "/usr/bin/razer-cli", "", 0o755)
	rig.setPath("/usr/bin")
	rig.cmd.on("/usr/bin/razer-cli", func(argv []string) (privileged.Status, string) {
		if argv[1] == "read" {
			return privileged.StatusSuccess, "Battery health optimization is off\n"
		}
		return privileged.StatusTimeout, ""
	})

	d := rig.driver(t, NewRazer)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeMaxLife); status != privileged.StatusError {
		t.Errorf("Expected error status, got %v", status)
	}
	if got := rig.rec.Outcomes(); len(got) != 1 || got[0] != OutcomeTimeout {
		t.Errorf("Expected [timeout], got %v", got)
	}
	if calls := rig.cmd.Calls(); len(calls) != 2 {
		t.Errorf("Expected read and write only, got %v", calls)
	}
}

func TestFramework_ToolBackend(t *testing.T) {
	rig := newRig(t)
	rig.write(t, probe.DMIVendorPath, "Framework\n")
	rig.write(t, crosECPath, "")
	rig.writeMode(t, "/usr/bin/framework_tool", "", 0o755)
	rig.setPath("/usr/bin")
	rig.cmd.on("FRAMEWORK_TOOL_THRESHOLD_READ", func([]string) (privileged.Status, string) {
		return privileged.StatusSuccess, "Minimum 0%, Maximum 100%\n"
	})
	rig.cmd.on("FRAMEWORK_TOOL_THRESHOLD_WRITE", func(argv []string) (privileged.Status, string) {
		return privileged.StatusSuccess, "Minimum 0%, Maximum " + argv[5] + "%\n"
	})
	_ = rig.settings.SetInt(config.EndThresholdKey("max", 1), 80)

	d := rig.driver(t, NewFramework)
	mustAvailable(t, d)
	if got := rig.settings.String(config.KeyConfigurationMode); got != "framework-tool" {
		t.Errorf("Expected single backend to be persisted, got %q", got)
	}

	if status := d.SetThresholdLimit(context.Background(), ModeMaxLife); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	calls := rig.cmd.Calls()
	wantRead := []string{"pkexec", testCtlPath, "FRAMEWORK_TOOL_THRESHOLD_READ", "/usr/bin/framework_tool", "cros-ec"}
	wantWrite := []string{"pkexec", testCtlPath, "FRAMEWORK_TOOL_THRESHOLD_WRITE", "/usr/bin/framework_tool", "cros-ec", "80"}
	if len(calls) != 2 || !equalArgv(calls[0], wantRead) || !equalArgv(calls[1], wantWrite) {
		t.Errorf("Expected read then write, got %v", calls)
	}
}

func TestFramework_PrefersEndStartVariant(t *testing.T) {
	rig := newRig(t)
	end, start := batteryPaths("BAT1")
	rig.write(t, probe.DMIVendorPath, "Framework\n")
	rig.write(t, end, "100")
	rig.write(t, start, "95")

	if d := rig.driver(t, NewFramework); d.IsAvailable(context.Background()) {
		t.Error("Expected the end-only driver to step aside")
	}
	if d := rig.driver(t, NewFrameworkEndStart); !d.IsAvailable(context.Background()) {
		t.Error("Expected the end/start driver to match")
	}
}

func TestChromebook_EctoolClampsGap(t *testing.T) {
	rig := newRig(t)
	rig.write(t, probe.DMIVendorPath, "Google\n")
	rig.writeMode(t, "/usr/bin/ectool", "", 0o755)
	rig.setPath("/usr/bin")

	sustainer := "Battery sustainer = on (95% ~ 100%)"
	rig.cmd.on("ECTOOL_THRESHOLD_READ", func([]string) (privileged.Status, string) {
		return privileged.StatusSuccess, sustainer
	})
	rig.cmd.on("ECTOOL_THRESHOLD_WRITE", func(argv []string) (privileged.Status, string) {
		sustainer = "Battery sustainer = on (" + argv[4] + "% ~ " + argv[5] + "%)"
		return privileged.StatusSuccess, ""
	})
	_ = rig.settings.SetInt(config.EndThresholdKey("bal", 1), 80)
	_ = rig.settings.SetInt(config.StartThresholdKey("bal", 1), 78)

	d := rig.driver(t, NewChromebook)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeBalanced); status != privileged.StatusSuccess {
		t.Fatalf("Expected success, got %v", status)
	}
	var write []string
	for _, c := range rig.cmd.Calls() {
		if c[2] == "ECTOOL_THRESHOLD_WRITE" {
			write = c
		}
	}
	if !equalArgv(write, []string{"pkexec", testCtlPath, "ECTOOL_THRESHOLD_WRITE", "/usr/bin/ectool", "75", "80"}) {
		t.Errorf("Expected start clamped to 75, got %v", write)
	}
	s := d.State()
	if s.StartLimit != 75 || s.EndLimit != 80 {
		t.Errorf("Expected 75-80, got %d-%d", s.StartLimit, s.EndLimit)
	}
}

func TestChromebook_ReadTimeout(t *testing.T) {
	rig := newRig(t)
	rig.write(t, probe.DMIVendorPath, "Google\n")
	rig.writeMode(t, "/usr/bin/ectool", "", 0o755)
	rig.setPath("/usr/bin")
	rig.cmd.on("ECTOOL_THRESHOLD_READ", func([]string) (privileged.Status, string) {
		return privileged.StatusTimeout, ""
	})

	d := rig.driver(t, NewChromebook)
	mustAvailable(t, d)

	if status := d.SetThresholdLimit(context.Background(), ModeFull); status != privileged.StatusError {
		t.Errorf("Expected error, got %v", status)
	}
	for _, c := range rig.cmd.Calls() {
		if strings.HasSuffix(c[2], "WRITE") {
			t.Errorf("Expected no write after a failed read, got %v", c)
		}
	}
	if got := rig.rec.Outcomes(); len(got) != 1 || got[0] != OutcomeTimeout {
		t.Errorf("Expected [timeout], got %v", got)
	}
}
