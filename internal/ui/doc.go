// Package ui renders the terminal output of the battctl CLI.
//
// Commands run once and exit, so nothing here is interactive beyond the
// password prompt. Output is built from three pieces:
//
//   - Header: device banner with the descriptor and selected backend
//   - Result: success, failure or warning box with ordered details
//   - ReadPassword: no-echo prompt for the BIOS password
//
// # Logging Integration
//
// zap output stays silent unless BATTCTL_LOG_LEVEL (or --log-level) is set,
// so the boxes rendered here are the only thing a user normally sees.
package ui
