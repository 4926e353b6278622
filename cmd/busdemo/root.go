// Package main provides the CLI entrypoint for busdemo.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/adapter/output"
	"github.com/jmylchreest/busdemo/internal/config"
	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/store"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose     bool
		historyFile string
		configPath  string
		format      string
	}
	logger *slog.Logger

	// historyStore is the global call log; nil when history is disabled
	historyStore *store.Store
	historyPath  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "busdemo",
	Short: "D-Bus notification and introspection demo",
	Long: `busdemo sends desktop notifications and introspects D-Bus objects on the
session bus, synchronously or asynchronously, and keeps a log of every call.

Running busdemo without a subcommand launches the interactive TUI.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Setup logging
		setupLogger(cfg)

		if _, err := output.ParseFormat(globalOpts.format); err != nil {
			return err
		}

		if !cfg.History.Enabled && globalOpts.historyFile == "" {
			logger.Debug("call history disabled")
			return nil
		}

		// Use custom history file path if specified, otherwise use config
		historyPath = globalOpts.historyFile
		if historyPath == "" {
			historyPath, err = cfg.HistoryPath()
			if err != nil {
				return fmt.Errorf("failed to resolve history path: %w", err)
			}
		}

		persistence, err := store.NewJSONLPersistence(historyPath)
		if err != nil {
			return fmt.Errorf("failed to initialize persistence: %w", err)
		}

		historyStore = store.NewStore(persistence)
		if err := historyStore.Hydrate(); err != nil {
			logger.Warn("failed to hydrate store from disk", "error", err)
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Cleanup store
		if historyStore != nil {
			return historyStore.Close()
		}
		return nil
	},
	// Default to TUI when no subcommand is provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.historyFile, "history-file", "",
		"Path to call log (default: ~/.local/share/busdemo/calls.jsonl)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/busdemo/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.format, "format", "f", string(output.FormatPlain),
		"Output format (plain, dmenu, ids, json, yaml)")
}

// setupLogger configures the global slog logger from the config, with
// --verbose forcing debug.
func setupLogger(c *config.Config) {
	level, err := c.Log.SlogLevel()
	if err != nil {
		level = slog.LevelWarn
	}
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Log to stderr so stdout is clean for output
	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connect opens the shared session bus and builds a client that records
// into the call log.
func connect() (*dbus.BusTransport, *dbus.Client, error) {
	transport, err := dbus.SessionTransport()
	if err != nil {
		return nil, nil, err
	}

	opts := []dbus.Option{
		dbus.WithLogger(logger),
		dbus.WithTimeout(cfg.DBus.CallTimeout.Duration()),
	}
	if historyStore != nil {
		opts = append(opts, dbus.WithRecorder(historyStore))
	}
	return transport, dbus.NewClient(transport, opts...), nil
}

// newFormatter returns the formatter selected by --format.
func newFormatter(opts output.FormatterOptions) output.Formatter {
	format, err := output.ParseFormat(globalOpts.format)
	if err != nil {
		format = output.FormatPlain
	}
	return output.NewFormatter(format, opts)
}

// requireHistory fails when the call log is disabled.
func requireHistory() error {
	if historyStore == nil {
		return fmt.Errorf("call history is disabled (set history.enabled or pass --history-file)")
	}
	return nil
}
