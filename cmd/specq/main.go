package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/config"
	"github.com/specq/specq/internal/telemetry"
	"github.com/specq/specq/internal/ui"
)

var (
	configPath  string
	stateMode   string
	maxRetries  int
	verboseFlag bool

	// settings is resolved once in PersistentPreRun and read by every
	// command. Flag overrides are applied on top of env and file values.
	settings *config.Settings

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// configFreeCommands run without loading configuration or telemetry.
var configFreeCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "specq",
	Short: "specq - TDD pipeline queue manager",
	Long: `Manages the spec queue that drives an automated TDD pipeline.

Every command prints exactly one JSON object to stdout and human
diagnostics to stderr. Exit codes: 0 success, 1 expected nothing-to-do
(no ready spec, already unlocked, serial processing in progress),
2 unexpected error.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion()
			return
		}
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Verbose = verboseFlag
		setupSignalContext()

		if configFreeCommands[cmd.Name()] {
			return
		}

		s, err := config.Load(config.Options{ConfigPath: configPath})
		if err != nil {
			fatal(err)
		}
		settings = s
		for _, k := range s.UnknownKeys {
			ui.Warnf("Ignoring unknown key %q in %s", k, s.ConfigFile)
		}
		applyFlagOverrides(cmd)

		if err := telemetry.Init(rootCtx, "specq", Version); err != nil {
			ui.Warnf("telemetry init failed: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)

		if rootCancel != nil {
			rootCancel()
		}
	},
}

// setupSignalContext cancels rootCtx on SIGINT/SIGTERM so a killed
// invocation stops between attempts instead of mid-sleep.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyFlagOverrides layers command-line flags over the loaded settings.
// Flags win over env, env over file, file over defaults.
func applyFlagOverrides(cmd *cobra.Command) {
	switch stateMode {
	case "":
	case "local":
		settings.RemoteState = false
	case "remote":
		settings.RemoteState = true
	default:
		fatal(fmt.Errorf("invalid --state-mode %q (want local or remote)", stateMode))
	}
	if cmd.Flags().Changed("max-retries") {
		if maxRetries < 1 {
			fatal(fmt.Errorf("--max-retries must be at least 1, got %d", maxRetries))
		}
		settings.MaxRetries = maxRetries
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: discover .specq/config.yaml upward)")
	rootCmd.PersistentFlags().StringVar(&stateMode, "state-mode", "", "State backend: local or remote (default: remote when CI/GITHUB_ACTIONS is set)")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "Override the per-document retry budget for this invocation")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose stderr output")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Usage errors have already been printed by cobra; the envelope
		// still has to appear on stdout for the scheduler.
		outputJSONError(err, exitUnexpected)
	}
}
