// Package orchestrator owns the active charge threshold driver.
//
// An Orchestrator runs the compatibility check: it asks the registry for
// a driver, verifies the privileged helper installation for drivers that
// need root, hands the driver the helper path and applies the configured
// charging mode once. Outcomes emitted by the driver are republished to a
// Notifier.
//
// # Lifecycle
//
// The orchestrator moves through these states:
//
//	idle ──unsupported──▶ unsupported
//	idle ──block────────▶ install-blocked
//	idle ──activate─────▶ active
//	idle ──fail─────────▶ apply-failed
//	any  ──reset────────▶ idle
//	any  ──stop─────────▶ stopped
//
// Every compatibility check starts from idle and destroys the previous
// driver first. An external change of the polkit-status setting (an
// installer finishing, for example) triggers a new check.
package orchestrator
