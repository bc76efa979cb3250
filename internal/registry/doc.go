// Package registry finds the driver matching the running laptop.
//
// Drivers are tried in ascending type order. The type of the driver that
// matched is persisted under the device-type setting so the next start
// probes that driver first and only falls back to a full scan when it no
// longer matches (for example after the laptop's firmware or kernel
// modules changed).
//
// When no driver matches, Detect returns an *UnsupportedError whose
// DocSuffix points at the vendor specific section of the compatibility
// documentation, which usually lists the kernel module or vendor tool
// that is missing.
package registry
