package privileged

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/muurk/battctl/internal/logging"
	"github.com/muurk/battctl/internal/metrics"
)

// Config holds channel settings.
type Config struct {
	// Elevator is the program used to gain privileges (pkexec).
	Elevator string

	// Timeout is the wall-clock limit for a single invocation.
	Timeout time.Duration
}

// DefaultConfig returns the default channel configuration.
func DefaultConfig() Config {
	return Config{
		Elevator: "pkexec",
		Timeout:  5 * time.Second,
	}
}

// Channel runs helper commands one at a time. A call made while another is
// in flight fails immediately instead of queueing.
type Channel struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	sem    *semaphore.Weighted
	cancel context.CancelFunc
}

// NewChannel creates a channel. A nil logger disables logging.
func NewChannel(config Config, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Elevator == "" {
		config.Elevator = DefaultConfig().Elevator
	}
	return &Channel{
		config: config,
		logger: logger,
		sem:    semaphore.NewWeighted(1),
	}
}

// Config returns the channel configuration.
func (c *Channel) Config() Config {
	return c.config
}

// Execute runs argv and returns its exit status and captured stdout.
// Output is nil unless the process ran to completion. A concurrent call
// returns (StatusError, nil) without touching the running one; a call that
// exceeds the timeout is killed and returns (StatusTimeout, nil).
func (c *Channel) Execute(ctx context.Context, argv []string) (Status, *string) {
	start := time.Now()
	stdout, err := c.run(ctx, argv)
	status := statusFor(err)

	fields := logging.CommandFields(argv, int(status), time.Since(start))
	keyword := fields[0].String
	metrics.HelperCommandsTotal.WithLabelValues(keyword, status.String()).Inc()
	metrics.HelperCommandLatency.WithLabelValues(keyword).Observe(time.Since(start).Seconds())

	var exitErr *ExitError
	switch {
	case err == nil:
		c.logger.Debug("Helper command finished", fields...)
		return status, &stdout
	case errors.As(err, &exitErr):
		// The process ran; keep whatever it printed for the caller.
		c.logger.Debug("Helper command failed", append(fields, zap.String("stderr", exitErr.Stderr))...)
		return status, &stdout
	default:
		c.logger.Warn("Helper command did not complete", append(fields, zap.Error(err))...)
		return status, nil
	}
}

// RunCtl invokes the helper at ctlPath through the elevator with the given
// command keyword. Empty arguments are dropped.
func (c *Channel) RunCtl(ctx context.Context, ctlPath, command string, args ...string) (Status, *string) {
	return c.Execute(ctx, c.CtlArgv(ctlPath, command, args...))
}

// CtlArgv builds [elevator, ctlPath, command, nonEmptyArgs...].
func (c *Channel) CtlArgv(ctlPath, command string, args ...string) []string {
	argv := []string{c.config.Elevator, ctlPath, command}
	for _, a := range args {
		if a != "" {
			argv = append(argv, a)
		}
	}
	return argv
}

// Busy reports whether an invocation is in flight.
func (c *Channel) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Destroy cancels any in-flight invocation and resets the concurrency
// guard. The channel remains usable afterwards.
func (c *Channel) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	// The cancelled call releases the semaphore it acquired; swapping in a
	// fresh one clears the guard now rather than when that call unwinds.
	c.sem = semaphore.NewWeighted(1)
}

func (c *Channel) run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", &StartError{Argv: argv, Err: errors.New("empty command")}
	}

	c.mu.Lock()
	sem := c.sem
	if !sem.TryAcquire(1) {
		c.mu.Unlock()
		c.logger.Debug("Privileged command already running", zap.Strings("argv", logging.MaskArgv(argv)))
		return "", &BusyError{Argv: argv}
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.sem == sem {
			c.cancel = nil
		}
		c.mu.Unlock()
		sem.Release(1)
	}()

	cmd := exec.CommandContext(timeoutCtx, argv[0], argv[1:]...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	// Do not wait on pipes held open by grandchildren after a kill.
	cmd.WaitDelay = 500 * time.Millisecond

	err := cmd.Run()

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return "", &TimeoutError{Argv: argv, Timeout: c.config.Timeout}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return stdoutBuf.String(), &ExitError{
				Argv:   argv,
				Code:   exitErr.ExitCode(),
				Stderr: stderrBuf.String(),
				Err:    err,
			}
		}
		return "", &StartError{Argv: argv, Err: err}
	}

	if stderrBuf.Len() > 0 {
		c.logger.Debug("Helper command wrote to stderr",
			zap.Strings("argv", logging.MaskArgv(argv)),
			zap.String("stderr", stderrBuf.String()),
		)
	}

	return stdoutBuf.String(), nil
}

func statusFor(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return StatusTimeout
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return Status(exitErr.Code)
	}
	return StatusError
}
