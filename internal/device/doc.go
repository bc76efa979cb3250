// Package device implements the charge threshold drivers.
//
// A Driver couples a fixed Descriptor with one or more Backends per
// battery. Every apply runs the same protocol: resolve the target for the
// requested mode from the settings, read the hardware and stop if it
// already matches, write through the privileged helper, then read back,
// once more after a short settle delay. Each call ends with exactly one
// Outcome delivered to the driver's Observers and a privileged.Status
// returned to the caller. Outcomes are delivered once the driver lock is
// released, so observers may call State.
//
// Vendor differences are data (ranges, paths, helper command keywords) and
// small Backend implementations for the parts that do not fit the sysfs
// pattern: vendor tools, mode selectors and output parsing.
package device
