// Package main is the entry point for the busdemo GTK application.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/glib/v2"
	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/busdemo/internal/config"
	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/demo"
	"github.com/jmylchreest/busdemo/internal/display"
	"github.com/jmylchreest/busdemo/internal/store"
)

const appID = "org.gtk.example"

var (
	// Build-time variables
	version = "dev"
)

func main() {
	// Parse command line flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/busdemo/config.toml)")
	flag.Parse()

	if *showVersion {
		fmt.Println("busdemo-gtk version", version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// Set up structured logging
	level, _ := cfg.Log.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting busdemo-gtk", "version", version)

	if *configPath == "" {
		*configPath = config.ConfigPath()
	}

	// GApplication parses its own options; ours are already consumed
	os.Exit(run(cfg, *configPath, logger, append([]string{os.Args[0]}, flag.Args()...)))
}

func run(cfg *config.Config, configPath string, logger *slog.Logger, args []string) int {
	// Create the libadwaita application
	app := adw.NewApplication(appID, 0)

	// Shared state between GTK main loop and signal handlers
	var (
		window        *display.Window
		service       *dbus.DemoService
		historyStore  *store.Store
		configWatcher *config.Watcher
		running       atomic.Bool
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case <-ctx.Done():
			return
		}

		// Quit from the main loop; shutdown handles the cleanup
		glib.IdleAdd(func() {
			if running.Load() {
				app.Quit()
			}
		})
	}()

	// Handle application activation
	app.ConnectActivate(func() {
		if running.Load() {
			// A second activation raises the existing window
			if window != nil {
				window.Present()
			}
			return
		}
		running.Store(true)

		transport, err := dbus.SessionTransport()
		if err != nil {
			logger.Error("failed to connect to session bus", "error", err)
			app.Quit()
			return
		}

		// Export the object the introspection buttons look at
		path := godbus.ObjectPath(cfg.DBus.DemoPath)
		target := demo.Target{Destination: cfg.DBus.Destination, Path: path}
		if target.Destination == "" {
			service = dbus.NewDemoService(transport.Conn(), path, version, logger)
			if err := service.Export(); err != nil {
				logger.Error("failed to export demo object", "error", err)
				app.Quit()
				return
			}
			target.Destination = transport.UniqueName()
		}

		historyStore = openStore(cfg, logger)

		client := dbus.NewClient(transport,
			dbus.WithLogger(logger),
			dbus.WithTimeout(cfg.DBus.CallTimeout.Duration()),
			dbus.WithDispatcher(display.Dispatch),
			dbus.WithRecorder(historyStore),
		)

		window = display.NewWindow(&app.Application, display.Options{
			Client:  client,
			Target:  target,
			Request: cfg.Notification.Request(),
			Logger:  logger,
		})
		window.Present()

		// Apply notification edits without a restart
		configWatcher, err = config.NewWatcher(configPath, logger, func(newCfg *config.Config) {
			glib.IdleAdd(func() {
				if window != nil {
					window.SetRequest(newCfg.Notification.Request())
				}
			})
		})
		if err != nil {
			logger.Warn("failed to create config watcher", "error", err)
		} else if err := configWatcher.Start(); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		}

		// Show what the server does with our notifications
		events, err := dbus.WatchSignals(ctx, transport.Conn())
		if err != nil {
			logger.Warn("failed to watch notification signals", "error", err)
			return
		}
		go func() {
			for ev := range events {
				line := formatSignal(ev)
				glib.IdleAdd(func() {
					if window != nil {
						window.AppendLog(line)
					}
				})
			}
		}()

		logger.Info("busdemo-gtk ready", "unique_name", transport.UniqueName(), "target", target.Destination)
	})

	// Handle shutdown
	app.ConnectShutdown(func() {
		logger.Info("application shutting down")
		cancel()
		if configWatcher != nil {
			_ = configWatcher.Stop()
		}
		if window != nil {
			window.Shutdown()
		}
		if service != nil {
			service.Unexport()
		}
		if historyStore != nil {
			_ = historyStore.Close()
		}
		running.Store(false)
	})

	// Run the application
	status := app.Run(args)
	if status != 0 {
		logger.Error("application exited with error", "status", status)
		return status
	}

	logger.Info("busdemo-gtk stopped")
	return 0
}

// openStore opens the call log, falling back to memory when history is
// disabled or the file cannot be opened.
func openStore(cfg *config.Config, logger *slog.Logger) *store.Store {
	if !cfg.History.Enabled {
		return store.NewStore(nil)
	}

	historyPath, err := cfg.HistoryPath()
	if err != nil {
		logger.Warn("failed to get history path", "error", err)
		return store.NewStore(nil)
	}

	persistence, err := store.NewJSONLPersistence(historyPath)
	if err != nil {
		logger.Warn("failed to create persistence", "error", err)
		return store.NewStore(nil)
	}

	s := store.NewStore(persistence)
	if err := s.Hydrate(); err != nil {
		logger.Warn("failed to hydrate store", "error", err)
	}
	logger.Info("call log initialized", "path", historyPath, "count", s.Count())
	return s
}

func formatSignal(ev dbus.SignalEvent) string {
	switch ev.Kind {
	case dbus.SignalActionInvoked:
		return fmt.Sprintf("%s: id = %d, action = %s", ev.Kind, ev.ID, ev.ActionKey)
	case dbus.SignalNotificationClosed:
		return fmt.Sprintf("%s: id = %d, reason = %s", ev.Kind, ev.ID, ev.Reason)
	default:
		return fmt.Sprintf("%s: id = %d", ev.Kind, ev.ID)
	}
}
