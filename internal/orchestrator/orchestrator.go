package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/metrics"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
	"github.com/muurk/battctl/internal/registry"
)

// ErrNoDriver is returned by apply calls while no driver is active.
var ErrNoDriver = errors.New("no active charge threshold driver")

// HelperError is returned by Start when the helper is not usable.
type HelperError struct {
	Status InstallStatus
}

func (e *HelperError) Error() string {
	return fmt.Sprintf("privileged helper %s: %s", e.Status, e.Status.Hint())
}

// Config holds the orchestrator settings.
type Config struct {
	// User owns the helper installation
	User string
	// ResourceDir is compared against the installed helper files
	ResourceDir string
	// HelperDir overrides the helper install directory
	HelperDir string
	// FollowSettings re-applies thresholds when the charging mode or a
	// threshold setting changes. Long running processes enable it.
	FollowSettings bool
	// SkipFirstApply leaves the hardware alone after detection
	SkipFirstApply bool
}

// Orchestrator owns the active driver.
type Orchestrator struct {
	cfg      Config
	env      device.Env
	registry *registry.Registry
	notifier Notifier
	logger   *zap.Logger

	lifecycle *fsm.FSM

	// mu guards the fields below.
	mu          sync.Mutex
	driver      *device.Driver
	ctlPath     string
	unsubPolkit func()
	unsubEvents func()
	follow      []func()

	// applyMu serializes threshold applies.
	applyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. env.Settings, env.FS and env.Commander
// should be set; missing pieces fall back to the registry defaults.
func New(cfg Config, env device.Env, reg *registry.Registry, notifier Notifier) *Orchestrator {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Observers == nil {
		env.Observers = device.NewObservers()
	}
	if env.Settings == nil {
		env.Settings = config.NewMemoryStore()
	}
	if env.FS == nil {
		env.FS = probe.Host()
	}
	if reg == nil {
		reg = registry.New(env)
	}
	if cfg.HelperDir == "" {
		cfg.HelperDir = HelperDir
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: env.Logger}
	}
	logger := env.Logger.Named("orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		env:       env,
		registry:  reg,
		notifier:  notifier,
		logger:    logger,
		lifecycle: newLifecycle(logger),
		ctx:       ctx,
		cancel:    cancel,
	}
	return o
}

// State returns the lifecycle state.
func (o *Orchestrator) State() string {
	return o.lifecycle.Current()
}

// Driver returns the active driver or nil.
func (o *Orchestrator) Driver() *device.Driver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.driver
}

// Start runs the compatibility check. It returns an
// *registry.UnsupportedError, a *HelperError or nil; a failing first
// apply is reported through the notifier only.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.unsubEvents == nil {
		o.unsubEvents = o.env.Observers.Subscribe(o.republish)
	}
	o.mu.Unlock()
	return o.checkCompatibility(ctx)
}

func (o *Orchestrator) republish(e device.Event) {
	d := o.Driver()
	if d == nil {
		return
	}
	o.notifier.Event(d.Descriptor(), e, d.State())
}

func (o *Orchestrator) checkCompatibility(ctx context.Context) error {
	o.disableDriver()

	d, err := o.registry.Detect(ctx)
	if err != nil {
		var unsupported *registry.UnsupportedError
		if errors.As(err, &unsupported) {
			o.notifier.Unsupported(unsupported)
			o.transition(EventUnsupported)
		}
		return err
	}

	if d.NeedsRoot() {
		o.watchPolkit(false)
		status := o.CheckInstallation(ctx)
		metrics.SetInstallationStatus(status.String(), KnownInstallStatuses)
		o.logger.Info("Installation check", zap.Stringer("status", status))

		if status.Persisted() {
			if err := o.env.Settings.SetString(config.KeyPolkitStatus, status.String()); err != nil {
				o.logger.Warn("Failed to save installation status", zap.Error(err))
			}
			o.watchPolkit(true)
		}
		if status != InstallInstalled {
			d.Destroy()
			o.notifier.Installation(status)
			o.transition(EventBlock)
			return &HelperError{Status: status}
		}
	}

	o.mu.Lock()
	d.SetCtlPath(o.ctlPath)
	o.driver = d
	o.mu.Unlock()

	if o.cfg.FollowSettings {
		o.followSettings(d)
	}

	if o.cfg.SkipFirstApply {
		o.transition(EventActivate)
		return nil
	}

	var status privileged.Status
	if d.Descriptor().DualBattery {
		status = o.ApplyDual(ctx)
	} else {
		status = o.Apply(ctx, device.Mode(o.env.Settings.String(config.KeyChargingMode)))
	}
	if status != privileged.StatusSuccess {
		o.transition(EventFail)
		return nil
	}
	o.transition(EventActivate)
	return nil
}

// watchPolkit follows external changes of polkit-status. A helper that
// becomes unusable disables the driver; a helper that becomes installed
// triggers a new compatibility check.
func (o *Orchestrator) watchPolkit(enable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.unsubPolkit != nil {
		o.unsubPolkit()
		o.unsubPolkit = nil
	}
	if !enable {
		return
	}
	o.unsubPolkit = o.env.Settings.Subscribe(config.KeyPolkitStatus, func(string) {
		status := InstallStatus(o.env.Settings.String(config.KeyPolkitStatus))
		o.background(func(ctx context.Context) {
			switch status {
			case InstallNotInstalled, InstallNeedUpdate:
				o.logger.Info("Helper installation changed", zap.Stringer("status", status))
				o.disableDriver()
				o.notifier.Installation(status)
				o.transition(EventBlock)
			case InstallInstalled:
				o.logger.Info("Helper installed, checking compatibility again")
				if err := o.checkCompatibility(ctx); err != nil {
					o.logger.Warn("Compatibility check failed", zap.Error(err))
				}
			}
		})
	})
}

// Apply sets mode on the first battery.
func (o *Orchestrator) Apply(ctx context.Context, mode device.Mode) privileged.Status {
	return o.withDriver(func(d *device.Driver) privileged.Status {
		return d.SetThresholdLimit(ctx, mode)
	})
}

// Apply2 sets mode on the second battery of a dual battery device.
func (o *Orchestrator) Apply2(ctx context.Context, mode device.Mode) privileged.Status {
	return o.withDriver(func(d *device.Driver) privileged.Status {
		return d.SetThresholdLimit2(ctx, mode)
	})
}

// Refresh re-reads the thresholds of the active driver without writing.
func (o *Orchestrator) Refresh(ctx context.Context) privileged.Status {
	return o.withDriver(func(d *device.Driver) privileged.Status {
		return d.Refresh(ctx)
	})
}

// ApplyDual applies the configured modes to both batteries.
func (o *Orchestrator) ApplyDual(ctx context.Context) privileged.Status {
	return o.withDriver(func(d *device.Driver) privileged.Status {
		return d.SetThresholdLimitDual(ctx)
	})
}

func (o *Orchestrator) withDriver(fn func(d *device.Driver) privileged.Status) privileged.Status {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	d := o.Driver()
	if d == nil {
		o.logger.Warn("Apply requested without a driver", zap.Error(ErrNoDriver))
		return privileged.StatusError
	}
	return fn(d)
}

// disableDriver destroys the active driver and returns to idle.
func (o *Orchestrator) disableDriver() {
	o.mu.Lock()
	d := o.driver
	o.driver = nil
	follow := o.follow
	o.follow = nil
	o.mu.Unlock()

	for _, unsubscribe := range follow {
		unsubscribe()
	}
	if d != nil {
		o.applyMu.Lock()
		d.Destroy()
		o.applyMu.Unlock()
	}
	o.transition(EventReset)
}

// transition fires a lifecycle event, ignoring events that do not apply
// in the current state.
func (o *Orchestrator) transition(event string) {
	if !o.lifecycle.Can(event) {
		return
	}
	if err := o.lifecycle.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			o.logger.Debug("Lifecycle event failed", zap.String("event", event), zap.Error(err))
		}
	}
}

// background runs fn until Close.
func (o *Orchestrator) background(fn func(ctx context.Context)) {
	if o.ctx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

// Close destroys the driver and drops every subscription.
func (o *Orchestrator) Close() {
	o.cancel()
	o.watchPolkit(false)

	o.mu.Lock()
	unsubEvents := o.unsubEvents
	o.unsubEvents = nil
	o.mu.Unlock()
	if unsubEvents != nil {
		unsubEvents()
	}

	o.wg.Wait()
	o.disableDriver()
	o.transition(EventStop)
}
