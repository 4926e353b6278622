package main

import (
	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/config"
	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/store"
	"github.com/jmylchreest/busdemo/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive TUI",
	Long: `Launch the terminal rendition of the demo window.

The TUI provides:
  - Synchronous and asynchronous introspection of the demo object
  - Sending the configured notification, blocking or not
  - Closing the last notification and querying the server
  - A live call log, shared with other busdemo processes
  - Config reload when the config file changes

Key bindings:
  j/k, ↑/↓    Select action
  enter       Run the selected action
  v           View the last introspection
  x           Cancel pending calls
  c / C       Copy the call log as JSON / YAML
  r           Reload the call log
  ?           Show help
  q           Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	// The log pane needs a store even when nothing is persisted
	if historyStore == nil {
		historyStore = store.NewStore(nil)
	}

	transport, client, err := connect()
	if err != nil {
		return err
	}

	path := godbus.ObjectPath(cfg.DBus.DemoPath)
	target := tui.Target{Destination: cfg.DBus.Destination, Path: path}
	if target.Destination == "" {
		service := dbus.NewDemoService(transport.Conn(), path, version, logger)
		if err := service.Export(); err != nil {
			return err
		}
		defer service.Unexport()
		target.Destination = transport.UniqueName()
	}

	configPath := globalOpts.configPath
	if configPath == "" {
		configPath = config.ConfigPath()
	}

	return tui.Run(tui.RunOptions{
		Config:      cfg,
		ConfigPath:  configPath,
		Client:      client,
		Store:       historyStore,
		Target:      target,
		PersistPath: historyPath,
		Logger:      logger,
	})
}
