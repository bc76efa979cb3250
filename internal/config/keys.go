package config

import "fmt"

// Setting keys.
const (
	KeyDeviceType                     = "device-type"
	KeyConfigurationMode              = "configuration-mode"
	KeyMultipleConfigurationSupported = "multiple-configuration-supported"
	KeyChargingMode                   = "charging-mode"
	KeyChargingMode2                  = "charging-mode2"
	KeySkipThresholdVerification      = "skip-threshold-verification"
	KeyForceDischargeEnabled          = "force-discharge-enabled"
	KeyNeedBIOSPassword               = "need-bios-password"
	KeyPolkitStatus                   = "polkit-status"
	KeyAppleChargingLED               = "apple-charging-led"
)

// Installation status values stored under KeyPolkitStatus.
const (
	InstallInstalled    = "installed"
	InstallNotInstalled = "not-installed"
	InstallNeedUpdate   = "need-update"
)

// thresholdModes are the modes with user-settable thresholds.
var thresholdModes = []string{"ful", "bal", "max"}

// EndThresholdKey returns the key holding the end threshold for mode on
// battery 1 or 2.
func EndThresholdKey(mode string, battery int) string {
	return fmt.Sprintf("current-%s-end-threshold%s", mode, batterySuffix(battery))
}

// StartThresholdKey returns the key holding the start threshold for mode
// on battery 1 or 2.
func StartThresholdKey(mode string, battery int) string {
	return fmt.Sprintf("current-%s-start-threshold%s", mode, batterySuffix(battery))
}

// ChargingModeKey returns charging-mode or charging-mode2.
func ChargingModeKey(battery int) string {
	if battery == 2 {
		return KeyChargingMode2
	}
	return KeyChargingMode
}

func batterySuffix(battery int) string {
	if battery == 2 {
		return "2"
	}
	return ""
}

// Defaults returns a fresh copy of the default value for every key.
func Defaults() map[string]interface{} {
	d := map[string]interface{}{
		KeyDeviceType:                     0,
		KeyConfigurationMode:              "",
		KeyMultipleConfigurationSupported: []string{},
		KeyChargingMode:                   "ful",
		KeyChargingMode2:                  "ful",
		KeySkipThresholdVerification:      false,
		KeyForceDischargeEnabled:          false,
		KeyNeedBIOSPassword:               false,
		KeyPolkitStatus:                   InstallNotInstalled,
		KeyAppleChargingLED:               true,
	}

	ends := map[string]int{"ful": 100, "bal": 80, "max": 60}
	starts := map[string]int{"ful": 95, "bal": 75, "max": 55}
	for _, battery := range []int{1, 2} {
		for _, mode := range thresholdModes {
			d[EndThresholdKey(mode, battery)] = ends[mode]
			d[StartThresholdKey(mode, battery)] = starts[mode]
		}
	}
	return d
}
