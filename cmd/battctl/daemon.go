package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/battctl/internal/logging"
	"github.com/muurk/battctl/internal/metrics"
	"github.com/muurk/battctl/internal/orchestrator"
	"github.com/muurk/battctl/internal/power"
	"github.com/muurk/battctl/internal/probe"
	"github.com/muurk/battctl/internal/registry"
)

var metricsAddr string

func init() {
	daemonCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9842)")
	rootCmd.AddCommand(daemonCmd)
}

// daemonCmd keeps a driver alive
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep charge thresholds applied",
	Long: `Run in the foreground and keep the charge thresholds applied.

The daemon applies the saved charging mode at startup and again whenever
the settings file changes, follows battery hot-plug on dual battery
ThinkPads and drives force discharge from the UPower battery level.
It stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	fs := probe.Host()
	logger := logging.Named("power")
	levels := power.Chain(logger,
		power.NewUPower(logger),
		power.NewCapacityPoller(fs, "BAT0"),
		power.NewCapacityPoller(fs, "BAT1"),
	)

	s, err := newSession(currentOptions(), levels)
	if err != nil {
		return err
	}
	defer s.Close()

	o, err := s.orchestrator(newBoxNotifier(cmd.OutOrStdout()), true, false)
	if err != nil {
		return err
	}
	defer o.Close()

	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		return s.settings.Watch(ctx)
	})

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			s.logger.Info("Serving metrics", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return superviseStart(ctx, o)
	})

	return g.Wait()
}

// superviseStart runs the compatibility check and waits for shutdown. A
// missing helper is not fatal: the orchestrator checks again once the
// helper is reported installed.
func superviseStart(ctx context.Context, o *orchestrator.Orchestrator) error {
	err := o.Start(ctx)
	var unsupported *registry.UnsupportedError
	if errors.As(err, &unsupported) {
		return err
	}
	if err != nil {
		logging.Warn("Waiting for the helper", zap.Error(err))
	}
	<-ctx.Done()
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
