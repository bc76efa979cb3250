package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/orchestrator"
	"github.com/muurk/battctl/internal/registry"
)

func TestCurrentOptions_Defaults(t *testing.T) {
	opts := currentOptions()
	if opts.HelperDir != orchestrator.HelperDir {
		t.Errorf("Expected helper dir %s, got %s", orchestrator.HelperDir, opts.HelperDir)
	}
	if opts.ResourceDir != defaultResourceDir {
		t.Errorf("Expected resource dir %s, got %s", defaultResourceDir, opts.ResourceDir)
	}
	if opts.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", opts.Timeout)
	}
}

func TestCurrentOptions_EnvironmentOverlay(t *testing.T) {
	t.Setenv("BATTCTL_TIMEOUT", "12s")
	t.Setenv("BATTCTL_HELPER", "/opt/battctl/bin")
	t.Setenv("BATTCTL_RESOURCE_DIR", "/opt/battctl/share")

	opts := currentOptions()
	if opts.Timeout != 12*time.Second {
		t.Errorf("Expected 12s timeout, got %v", opts.Timeout)
	}
	if opts.HelperDir != "/opt/battctl/bin" {
		t.Errorf("Expected /opt/battctl/bin, got %s", opts.HelperDir)
	}
	if opts.ResourceDir != "/opt/battctl/share" {
		t.Errorf("Expected /opt/battctl/share, got %s", opts.ResourceDir)
	}
}

func TestParseBatteryTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    batteryTarget
		wantErr bool
	}{
		{"", targetFirst, false},
		{"1", targetFirst, false},
		{"2", targetSecond, false},
		{"dual", targetDual, false},
		{"3", 0, true},
	}
	for _, tt := range tests {
		got, err := parseBatteryTarget(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBatteryTarget(%q): expected error %v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBatteryTarget(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestSaveMode_Dual(t *testing.T) {
	settings := config.NewMemoryStore()
	if err := saveMode(settings, targetDual, device.ModeMaxLife); err != nil {
		t.Fatalf("saveMode: %v", err)
	}
	if got := settings.String(config.KeyChargingMode); got != "max" {
		t.Errorf("Expected charging-mode max, got %s", got)
	}
	if got := settings.String(config.KeyChargingMode2); got != "max" {
		t.Errorf("Expected charging-mode2 max, got %s", got)
	}
}

func TestSaveMode_SecondOnly(t *testing.T) {
	settings := config.NewMemoryStore()
	if err := saveMode(settings, targetSecond, device.ModeBalanced); err != nil {
		t.Fatalf("saveMode: %v", err)
	}
	if got := settings.String(config.KeyChargingMode); got != "ful" {
		t.Errorf("Expected charging-mode untouched, got %s", got)
	}
	if got := settings.String(config.KeyChargingMode2); got != "bal" {
		t.Errorf("Expected charging-mode2 bal, got %s", got)
	}
}

func TestOutcomeResult_Success(t *testing.T) {
	desc := device.Descriptor{Name: "Thinkpad BAT0", StartThreshold: true}
	state := device.State{EndLimit: 80, StartLimit: 75, Mode: device.ModeBalanced, ConfigurationMode: "sysfs"}
	event := device.Event{Kind: device.EventThresholdApplied, Battery: 1, Outcome: device.OutcomeSuccess}

	out := outcomeResult(desc, event, state).SetWidth(80).Render()
	for _, want := range []string{"Charge threshold applied", "Balanced", "80%", "75%", "sysfs"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got %q", want, out)
		}
	}
}

func TestOutcomeResult_SecondBattery(t *testing.T) {
	desc := device.Descriptor{Name: "Thinkpad BAT0/BAT1", DualBattery: true}
	state := device.State{EndLimit: 100, EndLimit2: 60, Mode2: device.ModeMaxLife}
	event := device.Event{Battery: 2, Outcome: device.OutcomeSuccessBattery2}

	out := outcomeResult(desc, event, state).SetWidth(80).Render()
	if !strings.Contains(out, "60%") || strings.Contains(out, "100%") {
		t.Errorf("Expected battery 2 thresholds only, got %q", out)
	}
}

func TestOutcomeResult_Failures(t *testing.T) {
	tests := []struct {
		outcome device.Outcome
		want    string
	}{
		{device.OutcomeNotUpdated, "did not report"},
		{device.OutcomeTimeout, "timed out"},
		{device.OutcomePasswordRequired, "battctl password set"},
		{device.OutcomeDischargeBattery, "below 80%"},
		{device.OutcomeError, "error"},
	}
	for _, tt := range tests {
		out := outcomeResult(device.Descriptor{Name: "LG"}, device.Event{Outcome: tt.outcome}, device.State{}).
			SetWidth(100).
			Render()
		if !strings.Contains(out, tt.want) {
			t.Errorf("%s: expected %q in output, got %q", tt.outcome, tt.want, out)
		}
	}
}

func TestBoxNotifier_Unsupported(t *testing.T) {
	var out bytes.Buffer
	newBoxNotifier(&out).Unsupported(&registry.UnsupportedError{Vendor: "Razer", DocSuffix: "/razer"})
	if !strings.Contains(out.String(), "Unsupported device") || !strings.Contains(out.String(), "Razer") {
		t.Errorf("Expected unsupported box, got %q", out.String())
	}
}

func TestPercent(t *testing.T) {
	if got := percent(-1); got != "unknown" {
		t.Errorf("Expected unknown, got %s", got)
	}
	if got := percent(80); got != "80%" {
		t.Errorf("Expected 80%%, got %s", got)
	}
}

func TestModeList(t *testing.T) {
	got := modeList([]device.Mode{device.ModeFull, device.ModeMaxLife})
	if got != "ful (Full Capacity), max (Maximum Lifespan)" {
		t.Errorf("Expected mode list, got %q", got)
	}
}

func TestRootHelp_VendorsHaveDrivers(t *testing.T) {
	long := rootCmd.Long
	start := strings.Index(long, "It supports ")
	end := strings.Index(long, " and\nmany")
	if start < 0 || end < start {
		t.Fatalf("Expected vendor sentence in root help, got %q", long)
	}
	list := strings.ReplaceAll(long[start+len("It supports "):end], "\n", " ")

	var names []string
	for _, c := range device.Catalog() {
		d := c(device.Env{})
		names = append(names, strings.ToLower(d.Descriptor().Name))
		d.Destroy()
	}

	for _, vendor := range strings.Split(list, ",") {
		vendor = strings.ToLower(strings.TrimSpace(vendor))
		found := false
		for _, name := range names {
			if strings.HasPrefix(name, vendor) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Root help lists %q but no driver covers it", vendor)
		}
	}
}
