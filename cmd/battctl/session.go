package main

import (
	"context"
	"fmt"
	"os/user"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/logging"
	"github.com/muurk/battctl/internal/orchestrator"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
	"github.com/muurk/battctl/internal/registry"
)

// session holds the collaborators of one command run.
type session struct {
	opts     globalOptions
	settings *config.FileStore
	channel  *privileged.Channel
	env      device.Env
	registry *registry.Registry
	logger   *zap.Logger
}

// newSession opens the settings and builds the driver environment. power
// may be nil for commands that do not force discharge.
func newSession(opts globalOptions, power device.PowerSource) (*session, error) {
	logger := logging.GetLogger()

	var (
		settings *config.FileStore
		err      error
	)
	if opts.ConfigPath != "" {
		settings, err = config.Open(opts.ConfigPath, logger.Named("config"))
	} else {
		settings, err = config.OpenDefault(logger.Named("config"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	channel := privileged.NewChannel(privileged.Config{Timeout: opts.Timeout}, logger.Named("privileged"))
	env := device.Env{
		FS:        probe.Host(),
		Commander: channel,
		Settings:  settings,
		Secrets:   config.KeyringSecrets{},
		Power:     power,
		Observers: device.NewObservers(),
		Logger:    logger.Named("device"),
	}

	reg := registry.New(env)
	logging.Debug("Driver catalog loaded", zap.Int("drivers", reg.Count()))

	return &session{
		opts:     opts,
		settings: settings,
		channel:  channel,
		env:      env,
		registry: reg,
		logger:   logger,
	}, nil
}

// orchestrator builds an orchestrator reporting through notifier.
func (s *session) orchestrator(notifier orchestrator.Notifier, follow, skipFirstApply bool) (*orchestrator.Orchestrator, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to determine current user: %w", err)
	}
	cfg := orchestrator.Config{
		User:           u.Username,
		ResourceDir:    s.opts.ResourceDir,
		HelperDir:      s.opts.HelperDir,
		FollowSettings: follow,
		SkipFirstApply: skipFirstApply,
	}
	return orchestrator.New(cfg, s.env, s.registry, notifier), nil
}

// start builds an orchestrator and runs the compatibility check. The
// returned orchestrator must be closed.
func (s *session) start(ctx context.Context, notifier orchestrator.Notifier, follow, skipFirstApply bool) (*orchestrator.Orchestrator, error) {
	o, err := s.orchestrator(notifier, follow, skipFirstApply)
	if err != nil {
		return nil, err
	}
	if err := o.Start(ctx); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

func (s *session) Close() {
	s.channel.Destroy()
}
