package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/orchestrator"
	"github.com/muurk/battctl/internal/registry"
	"github.com/muurk/battctl/internal/ui"
	"github.com/muurk/battctl/internal/urls"
)

// boxNotifier renders notifications as result boxes.
type boxNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func newBoxNotifier(out io.Writer) *boxNotifier {
	return &boxNotifier{out: out}
}

func (n *boxNotifier) print(r *ui.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, r.Render())
}

func (n *boxNotifier) Unsupported(err *registry.UnsupportedError) {
	r := ui.NewFailureResult("Unsupported device", err,
		"Check the supported devices at "+urls.DeviceCompatibility(err.DocSuffix))
	if err.Vendor != "" {
		r.AddDetail("Vendor", err.Vendor)
	}
	n.print(r)
}

func (n *boxNotifier) Installation(status orchestrator.InstallStatus) {
	n.print(ui.NewWarningResult("Privileged helper "+status.String(), status.Hint()))
}

func (n *boxNotifier) Event(d device.Descriptor, e device.Event, s device.State) {
	if e.Kind == device.EventBatteryStatusChanged {
		removed := s.Battery1Removed
		if e.Battery == 2 {
			removed = s.Battery2Removed
		}
		title := "Battery " + strconv.Itoa(e.Battery) + " inserted"
		if removed {
			title = "Battery " + strconv.Itoa(e.Battery) + " removed"
		}
		n.print(ui.NewWarningResult(title).AddDetail("Device", d.Name))
		return
	}
	n.print(outcomeResult(d, e, s))
}

// outcomeResult describes the outcome of one apply.
func outcomeResult(d device.Descriptor, e device.Event, s device.State) *ui.Result {
	switch e.Outcome {
	case device.OutcomeSuccess, device.OutcomeSuccessBattery2:
		r := ui.NewSuccessResult("Charge threshold applied")
		addStateDetails(r, d, s, e.Battery)
		return r
	case device.OutcomePasswordRequired:
		return ui.NewWarningResult("BIOS password required",
			"Store it with 'battctl password set' and apply again")
	case device.OutcomeDischargeBattery:
		return ui.NewWarningResult("Battery charge too high",
			"Discharge the battery below 80% and apply again")
	case device.OutcomeTimeout:
		return ui.NewFailureResult("Charge threshold not applied", fmt.Errorf("helper call timed out"),
			"Authenticate the pkexec prompt in time or raise --timeout")
	case device.OutcomeNotUpdated:
		return ui.NewFailureResult("Charge threshold not applied",
			fmt.Errorf("the firmware did not report the requested threshold"),
			"Some firmware applies thresholds only after a reboot or on AC power")
	default:
		return ui.NewFailureResult("Charge threshold not applied", fmt.Errorf("%s", e.Outcome),
			"Run with --log-level debug for details")
	}
}

func addStateDetails(r *ui.Result, d device.Descriptor, s device.State, battery int) {
	end, start, mode := s.EndLimit, s.StartLimit, s.Mode
	if battery == 2 {
		end, start, mode = s.EndLimit2, s.StartLimit2, s.Mode2
	}
	r.AddDetail("Device", d.Name)
	if d.DualBattery {
		r.AddDetail("Battery", strconv.Itoa(battery))
	}
	if mode != "" {
		r.AddDetail("Mode", mode.Label())
	}
	r.AddDetail("End threshold", percent(end))
	if d.StartThreshold {
		r.AddDetail("Start threshold", percent(start))
	}
	if s.ConfigurationMode != "" {
		r.AddDetail("Backend", s.ConfigurationMode)
	}
}

func percent(v int) string {
	if v < 0 {
		return "unknown"
	}
	return strconv.Itoa(v) + "%"
}
