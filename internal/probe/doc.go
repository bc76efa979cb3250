// Package probe implements the read-only hardware checks used by device
// drivers: sysfs file existence and reads, DMI identity strings, and
// discovery of vendor tools restricted to trusted installation prefixes.
//
// All paths are written as absolute host paths ("/sys/class/...") and resolved
// against FS.Root, which lets tests build a fake sysfs tree in a temporary
// directory:
//
//	fs := probe.New(t.TempDir())
//	fs.ReadFileInt("/sys/class/power_supply/BAT0/charge_control_end_threshold")
//
// Nothing in this package writes to the filesystem.
package probe
