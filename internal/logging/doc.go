// Package logging provides structured logging for battctl.
//
// This package wraps a global zap logger. Commands stay silent by default and
// only produce diagnostics when BATTCTL_LOG_LEVEL (or --log-level) is set, so
// normal CLI output is never interleaved with log lines.
//
// # Log Levels
//
//   - Debug: helper argv, raw read-back output, sysfs probe results
//   - Info: driver selection, installation status, apply outcomes
//   - Warn: fallbacks (backend re-selection, unreadable settings)
//   - Error: channel failures and watcher errors
//
// # Structured Logging
//
//	logging.Info("Supported device found",
//	    zap.String("device", "Thinkpad BAT0"),
//	    zap.Int("type", 20),
//	)
//
// Components normally receive a *zap.Logger at construction (see Named) rather
// than calling the package-level helpers.
//
// # Helper invocations
//
// CommandFields produces the field set used for every privileged helper call.
// MaskArgv hides the BIOS password passed to authenticated write commands.
//
// # Output
//
// Logs are written to stderr in console format:
//
//	2026-01-12T10:30:45.123+0100  INFO  privileged/channel.go:121  Helper command finished
//	  command=BAT0_END_START status=0 elapsed=84ms
package logging
