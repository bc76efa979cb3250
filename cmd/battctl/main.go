// Battctl manages laptop battery charge thresholds.
//
// It detects which of the supported vendor interfaces the laptop exposes,
// applies the configured charging mode through the privileged helper and
// verifies that the firmware took it. The daemon command keeps a driver
// alive to follow battery hot-plug, settings edits and force discharge.
//
// Usage:
//
//	battctl [command] [flags]
//
// See 'battctl --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/logging"
	"github.com/muurk/battctl/internal/orchestrator"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/version"
)

// envPrefix prefixes every environment override, e.g. BATTCTL_TIMEOUT.
const envPrefix = "BATTCTL"

// Global option keys, shared by flags and environment.
const (
	optConfig      = "config"
	optLogLevel    = "log-level"
	optHelper      = "helper"
	optTimeout     = "timeout"
	optResourceDir = "resource-dir"
)

const defaultResourceDir = "/usr/share/battctl"

var v = viper.New()

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error("Command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:   "battctl",
	Short: "Battery charge threshold manager",
	Long: `Battctl limits how far laptop batteries charge to extend their lifespan.

It supports ThinkPad, Dell, Apple, Framework, Chromebook, Razer and
many other vendor interfaces, detects the one your laptop exposes and
applies one of three modes:

  ful  Full Capacity
  bal  Balanced
  max  Maximum Lifespan

Writes go through a per-user privileged helper run with pkexec.
Every flag can also be set through the environment, e.g. BATTCTL_TIMEOUT=10s.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(v.GetString(optLogLevel))
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := bindGlobalFlags(rootCmd.PersistentFlags()); err != nil {
		panic(fmt.Sprintf("failed to bind flags: %v", err))
	}

	rootCmd.AddCommand(versionCmd)
}

// bindGlobalFlags registers the global flags and overlays BATTCTL_*
// environment variables on them.
func bindGlobalFlags(flags *pflag.FlagSet) error {
	flags.String(optConfig, "", "Settings file (default $XDG_CONFIG_HOME/battctl/settings.yaml)")
	flags.String(optLogLevel, "", "Log level (debug, info, warn, error); silent when empty")
	flags.String(optHelper, orchestrator.HelperDir, "Directory holding the privileged helper")
	flags.Duration(optTimeout, privileged.DefaultConfig().Timeout, "Time limit for a single helper call")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(optResourceDir, defaultResourceDir)
	return v.BindPFlags(flags)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("battctl %s\n", version.Full())
	},
}

// globalOptions is the resolved flag and environment state.
type globalOptions struct {
	ConfigPath  string
	HelperDir   string
	ResourceDir string
	Timeout     time.Duration
}

func currentOptions() globalOptions {
	return globalOptions{
		ConfigPath:  v.GetString(optConfig),
		HelperDir:   v.GetString(optHelper),
		ResourceDir: v.GetString(optResourceDir),
		Timeout:     v.GetDuration(optTimeout),
	}
}
