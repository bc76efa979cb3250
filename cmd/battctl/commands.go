package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/logging"
	"github.com/muurk/battctl/internal/orchestrator"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/registry"
	"github.com/muurk/battctl/internal/ui"
)

var applyBattery string

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkInstallCmd)
	rootCmd.AddCommand(passwordCmd)

	applyCmd.Flags().StringVar(&applyBattery, "battery", "1", "Battery to apply to (1, 2 or dual)")

	passwordCmd.AddCommand(passwordSetCmd)
	passwordCmd.AddCommand(passwordClearCmd)
}

// detectCmd reports the matching driver
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the charge threshold interface of this laptop",
	Long: `Probe the supported vendor interfaces and print the one that matches.

Probing only reads files and looks up vendor tools; the privileged helper
is not invoked. The detected device type is saved so later runs check it
first.`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func runDetect(cmd *cobra.Command, args []string) error {
	s, err := newSession(currentOptions(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.registry.Detect(cmd.Context())
	if err != nil {
		var unsupported *registry.UnsupportedError
		if errors.As(err, &unsupported) {
			newBoxNotifier(cmd.OutOrStdout()).Unsupported(unsupported)
		}
		return err
	}
	defer d.Destroy()

	desc := d.Descriptor()
	logging.Info("Supported device found", zap.String("device", desc.Name), zap.Int("type", desc.Type))
	h := ui.NewHeader(desc.Name, "battctl detect").
		AddParam("Device type", strconv.Itoa(desc.Type)).
		AddParam("Charging modes", modeList(desc.Modes())).
		AddParam("Start threshold", yesNo(desc.StartThreshold)).
		AddParam("Dual battery", yesNo(desc.DualBattery)).
		AddParam("Needs helper", yesNo(desc.NeedRoot))
	if backends := s.settings.Strings(config.KeyMultipleConfigurationSupported); len(backends) > 1 {
		h.AddParam("Backends", strings.Join(backends, ", "))
		h.AddParam("Selected backend", s.settings.String(config.KeyConfigurationMode))
	}
	fmt.Fprintln(cmd.OutOrStdout(), h.Render())
	return nil
}

// applyCmd applies a charging mode
var applyCmd = &cobra.Command{
	Use:   "apply [mode]",
	Short: "Apply a charging mode",
	Long: `Apply a charging mode and verify that the firmware took it.

Without a mode the saved charging mode is applied again. A given mode is
saved first, so a running daemon keeps it.

Modes: ful (Full Capacity), bal (Balanced), max (Maximum Lifespan), and on
devices with firmware profiles adv (Adaptive) and exp (Express).`,
	Example: `  # Re-apply the saved mode
  battctl apply

  # Switch to Maximum Lifespan
  battctl apply max

  # Second battery of a dual battery ThinkPad
  battctl apply bal --battery 2

  # Both batteries with their saved modes
  battctl apply --battery dual`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"ful", "bal", "max", "adv", "exp"},
	RunE:      runApply,
}

// batteryTarget selects the batteries an apply covers.
type batteryTarget int

const (
	targetFirst batteryTarget = iota
	targetSecond
	targetDual
)

func parseBatteryTarget(s string) (batteryTarget, error) {
	switch s {
	case "", "1":
		return targetFirst, nil
	case "2":
		return targetSecond, nil
	case "dual":
		return targetDual, nil
	default:
		return 0, fmt.Errorf("invalid --battery %q (want 1, 2 or dual)", s)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	target, err := parseBatteryTarget(applyBattery)
	if err != nil {
		return err
	}
	var mode device.Mode
	if len(args) == 1 {
		if mode, err = device.ParseMode(args[0]); err != nil {
			return err
		}
	}

	s, err := newSession(currentOptions(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	o, err := s.start(ctx, newBoxNotifier(cmd.OutOrStdout()), false, true)
	if err != nil {
		return err
	}
	defer o.Close()

	desc := o.Driver().Descriptor()
	if target != targetFirst && !desc.DualBattery {
		return fmt.Errorf("%s has a single battery", desc.Name)
	}
	if mode != "" {
		if !desc.SupportsMode(mode) {
			return fmt.Errorf("%s does not support %s", desc.Name, mode.Label())
		}
		if err := saveMode(s.settings, target, mode); err != nil {
			return err
		}
	}

	var status privileged.Status
	switch target {
	case targetSecond:
		status = o.Apply2(ctx, device.Mode(s.settings.String(config.KeyChargingMode2)))
	case targetDual:
		status = o.ApplyDual(ctx)
	default:
		status = o.Apply(ctx, device.Mode(s.settings.String(config.KeyChargingMode)))
	}
	if status != privileged.StatusSuccess {
		return fmt.Errorf("charge threshold not applied: %s", status)
	}
	return nil
}

func saveMode(settings config.Store, target batteryTarget, mode device.Mode) error {
	var keys []string
	switch target {
	case targetSecond:
		keys = []string{config.ChargingModeKey(2)}
	case targetDual:
		keys = []string{config.ChargingModeKey(1), config.ChargingModeKey(2)}
	default:
		keys = []string{config.ChargingModeKey(1)}
	}
	for _, key := range keys {
		if err := settings.SetString(key, string(mode)); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}
	return nil
}

// statusCmd shows the thresholds currently set
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the charge thresholds currently set",
	Long: `Detect the device and read back the thresholds the firmware reports.

Nothing is written. Devices whose thresholds are only readable through the
privileged helper need it installed.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := newSession(currentOptions(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	o, err := s.start(ctx, newBoxNotifier(cmd.OutOrStdout()), false, true)
	if err != nil {
		return err
	}
	defer o.Close()

	if status := o.Refresh(ctx); status != privileged.StatusSuccess {
		return fmt.Errorf("failed to read charge thresholds: %s", status)
	}

	d := o.Driver()
	desc, state := d.Descriptor(), d.State()
	h := ui.NewHeader(desc.Name, "battctl status").
		AddParam("Saved mode", device.Mode(s.settings.String(config.KeyChargingMode)).Label())
	batteryParams(h, desc, state.EndLimit, state.StartLimit, state.Mode, state.Battery1Removed, "")
	if desc.DualBattery {
		h.AddParam("Saved mode (battery 2)", device.Mode(s.settings.String(config.KeyChargingMode2)).Label())
		batteryParams(h, desc, state.EndLimit2, state.StartLimit2, state.Mode2, state.Battery2Removed, " (battery 2)")
	}
	if state.ConfigurationMode != "" {
		h.AddParam("Backend", state.ConfigurationMode)
	}
	fmt.Fprintln(cmd.OutOrStdout(), h.Render())
	return nil
}

func batteryParams(h *ui.Header, desc device.Descriptor, end, start int, mode device.Mode, removed bool, suffix string) {
	if removed {
		h.AddParam("Battery"+suffix, "removed")
		return
	}
	if mode.Fixed() {
		h.AddParam("Firmware profile"+suffix, mode.Label())
		return
	}
	h.AddParam("End threshold"+suffix, percent(end))
	if desc.StartThreshold {
		h.AddParam("Start threshold"+suffix, percent(start))
	}
}

// checkInstallCmd reports the helper installation
var checkInstallCmd = &cobra.Command{
	Use:   "check-install",
	Short: "Check the privileged helper installation",
	Long: `Ask the privileged helper whether it matches this version of battctl.

The result is saved, so a running daemon notices a helper that was
installed, updated or removed.`,
	Args: cobra.NoArgs,
	RunE: runCheckInstall,
}

func runCheckInstall(cmd *cobra.Command, args []string) error {
	s, err := newSession(currentOptions(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	o, err := s.orchestrator(newBoxNotifier(cmd.OutOrStdout()), false, true)
	if err != nil {
		return err
	}
	defer o.Close()

	status := o.CheckInstallation(cmd.Context())
	if status.Persisted() {
		if err := s.settings.SetString(config.KeyPolkitStatus, status.String()); err != nil {
			return fmt.Errorf("failed to save installation status: %w", err)
		}
	}

	if status != orchestrator.InstallInstalled {
		fmt.Fprintln(cmd.OutOrStdout(), ui.NewWarningResult("Privileged helper "+status.String(), status.Hint()).
			AddDetail("Helper", s.opts.HelperDir).
			Render())
		return &orchestrator.HelperError{Status: status}
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Privileged helper installed").
		AddDetail("Helper", s.opts.HelperDir).
		AddDetail("Resources", s.opts.ResourceDir).
		Render())
	return nil
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage the BIOS password used for authenticated writes",
	Long: `Some Dell laptops only accept threshold changes together with the BIOS
setup password. It is kept in the desktop secret store, never in the
settings file.`,
}

var passwordSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the BIOS password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := ui.ReadPassword(os.Stdin, cmd.OutOrStdout(), "BIOS password: ")
		if err != nil {
			return err
		}
		return updatePassword(cmd, func(secrets config.Secrets) error {
			return secrets.SetBIOSPassword(password)
		}, true)
	},
}

var passwordClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored BIOS password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePassword(cmd, config.Secrets.ClearBIOSPassword, false)
	},
}

func updatePassword(cmd *cobra.Command, fn func(config.Secrets) error, need bool) error {
	s, err := newSession(currentOptions(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s.env.Secrets); err != nil {
		return err
	}
	if err := s.settings.SetBool(config.KeyNeedBIOSPassword, need); err != nil {
		return fmt.Errorf("failed to save %s: %w", config.KeyNeedBIOSPassword, err)
	}

	title := "BIOS password stored"
	if !need {
		title = "BIOS password removed"
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult(title).Render())
	return nil
}

func modeList(modes []device.Mode) string {
	labels := make([]string, 0, len(modes))
	for _, m := range modes {
		labels = append(labels, string(m)+" ("+m.Label()+")")
	}
	return strings.Join(labels, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
