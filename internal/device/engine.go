package device

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/metrics"
	"github.com/muurk/battctl/internal/privileged"
)

// applyLane runs the write/verify protocol for one battery. d.mu is held.
//
//  1. resolve the target for mode
//  2. read; a match ends the call without touching the helper
//  3. write
//  4. read back, and once more after the settle delay
//  5. anything still mismatched is not-updated
//
// Every path emits exactly one outcome, except a removed battery which is
// a silent success.
func (d *Driver) applyLane(ctx context.Context, l *lane, mode Mode) privileged.Status {
	if l.removed {
		d.logger.Debug("Battery removed, skipping", zap.Int("battery", l.battery))
		return privileged.StatusSuccess
	}
	if !d.desc.SupportsMode(mode) {
		d.logger.Warn("Unsupported charging mode", zap.String("mode", string(mode)))
		d.emit(l, OutcomeError)
		return privileged.StatusError
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	if l.battery == 1 && d.fam.beforeApply != nil {
		d.fam.beforeApply(ctx, d, l, mode)
	}

	b := d.selectBackend(l)
	if b == nil {
		d.logger.Warn("No usable backend")
		d.emit(l, OutcomeError)
		return privileged.StatusError
	}

	t := resolveTarget(d.desc, d.env.Settings, l.battery, mode, d.fam.levels)
	logger := d.logger.With(
		zap.Int("battery", l.battery),
		zap.String("backend", b.Name()),
		zap.Stringer("target", t),
	)
	traits := traitsOf(b)
	skip := d.env.Settings.Bool(config.KeySkipThresholdVerification)

	prev := l.reading
	if !skip && !traits.NoPreVerify {
		r, status := b.Read(ctx)
		if status != privileged.StatusSuccess {
			return d.channelFailure(l, status)
		}
		l.reading = r
		if matches(b, t, r) {
			logger.Debug("Already applied")
			return d.succeed(l, t, r)
		}
		prev = r
	}

	status, out := b.Write(ctx, t, prev)
	if status.IsPasswordRequired() {
		logger.Info("Backend requires a password")
		d.emit(l, OutcomePasswordRequired)
		return privileged.StatusSuccess
	}
	if status != privileged.StatusSuccess {
		logger.Warn("Write failed", zap.Stringer("status", status))
		return d.channelFailure(l, status)
	}

	if skip {
		logger.Debug("Verification skipped")
		return d.succeed(l, t, Reading{End: t.End, Start: t.Start, Mode: fixedMode(t)})
	}

	var r Reading
	if or, ok := b.(outputReader); ok {
		if out != nil {
			r = or.ReadOutput(*out)
		} else {
			r = UnknownReading()
		}
		l.reading = r
		if matches(b, t, r) {
			return d.succeed(l, t, r)
		}
	} else {
		r, status = b.Read(ctx)
		if status != privileged.StatusSuccess {
			return d.channelFailure(l, status)
		}
		l.reading = r
		if matches(b, t, r) {
			return d.succeed(l, t, r)
		}

		if !traits.NoGraceRetry {
			if err := d.settleWait(ctx); err != nil {
				logger.Debug("Settle wait interrupted", zap.Error(err))
				d.emit(l, OutcomeError)
				return privileged.StatusError
			}
			r, status = b.Read(ctx)
			if status != privileged.StatusSuccess {
				return d.channelFailure(l, status)
			}
			l.reading = r
			if matches(b, t, r) {
				return d.succeed(l, t, r)
			}
		}
	}

	if res, ok := b.(mismatchResolver); ok {
		if resolved, outcome, ok := res.ResolveMismatch(t, r); ok {
			l.reading = resolved
			logger.Info("Resolved mismatch", zap.Stringer("outcome", outcome))
			d.emit(l, outcome)
			return outcome.Status()
		}
	}

	logger.Warn("Threshold not updated",
		zap.Int("end", r.End), zap.Int("start", r.Start), zap.String("mode", string(r.Mode)))
	d.emit(l, OutcomeNotUpdated)
	return privileged.StatusError
}

func fixedMode(t Target) Mode {
	if t.Mode.Fixed() {
		return t.Mode
	}
	return ""
}

func (d *Driver) succeed(l *lane, t Target, r Reading) privileged.Status {
	l.reading = r
	l.mode = t.Mode

	battery := strconv.Itoa(l.battery)
	if r.End >= 0 {
		metrics.EndThreshold.WithLabelValues(d.desc.Name, battery).Set(float64(r.End))
	}
	if r.Start >= 0 {
		metrics.StartThreshold.WithLabelValues(d.desc.Name, battery).Set(float64(r.Start))
	}
	d.emit(l, l.success)
	return privileged.StatusSuccess
}

// channelFailure reports a helper failure. Timeouts keep their own outcome;
// every other status is an error.
func (d *Driver) channelFailure(l *lane, status privileged.Status) privileged.Status {
	if status == privileged.StatusTimeout {
		d.emit(l, OutcomeTimeout)
	} else {
		d.emit(l, OutcomeError)
	}
	return privileged.StatusError
}

// emit queues the outcome for delivery by unlock. d.mu is held.
func (d *Driver) emit(l *lane, o Outcome) {
	metrics.ThresholdOutcomesTotal.WithLabelValues(d.desc.Name, o.String()).Inc()
	d.queued = append(d.queued, Event{
		Kind:    EventThresholdApplied,
		Device:  d.desc.Name,
		Battery: l.battery,
		Outcome: o,
	})
}

func (d *Driver) emitBatteryStatus(battery int) {
	d.env.Observers.Emit(Event{
		Kind:    EventBatteryStatusChanged,
		Device:  d.desc.Name,
		Battery: battery,
	})
}

// settleWait sleeps for the settle delay. A pending timer is stopped
// before a new one replaces it.
func (d *Driver) settleWait(ctx context.Context) error {
	d.timerMu.Lock()
	if d.settle != nil {
		d.settle.Stop()
		d.settle = nil
	}
	timer := time.NewTimer(d.env.SettleDelay)
	d.settle = timer
	d.timerMu.Unlock()

	defer func() {
		d.timerMu.Lock()
		if d.settle == timer {
			timer.Stop()
			d.settle = nil
		}
		d.timerMu.Unlock()
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
