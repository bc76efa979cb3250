package privileged

import (
	"fmt"
	"strings"
	"time"
)

// TimeoutError is returned when a helper invocation exceeds the channel
// timeout and is cancelled.
type TimeoutError struct {
	// Argv is the command that timed out
	Argv []string
	// Timeout is the limit that was exceeded
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q exceeded timeout of %s", strings.Join(e.Argv, " "), e.Timeout)
}

// BusyError is returned when another invocation is already in flight.
type BusyError struct {
	Argv []string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("command %q rejected: another privileged command is running", strings.Join(e.Argv, " "))
}

// ExitError wraps a non-zero exit of the invoked process.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %s", strings.Join(e.Argv, " "), e.Code, strings.TrimSpace(e.Stderr))
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// StartError is returned when the process could not be started at all
// (missing binary, permission denied).
type StartError struct {
	Argv []string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %q: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
