package main

import (
	"fmt"
	"os"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/adapter/output"
	"github.com/jmylchreest/busdemo/internal/dbus"
)

var introspectOpts struct {
	async bool
	dest  string
	path  string
	xml   bool
}

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Introspect a D-Bus object",
	Long: `Call org.freedesktop.DBus.Introspectable.Introspect on an object and print
its interfaces and child nodes.

Without --dest the demo object is exported on this process's own
connection and introspected through its unique name, so the call always
has something to answer it.

Examples:
  # Introspect the demo object
  busdemo introspect

  # Introspect the notification daemon without blocking
  busdemo introspect --async --dest org.freedesktop.Notifications --path /org/freedesktop/Notifications

  # Raw XML as JSON
  busdemo introspect --xml --format json`,
	RunE: runIntrospect,
}

func init() {
	rootCmd.AddCommand(introspectCmd)

	introspectCmd.Flags().BoolVar(&introspectOpts.async, "async", false,
		"Introspect without blocking and wait on the pending call")
	introspectCmd.Flags().StringVar(&introspectOpts.dest, "dest", "",
		"Bus name to introspect (default: own connection)")
	introspectCmd.Flags().StringVar(&introspectOpts.path, "path", "",
		"Object path (default: dbus.demo_path from config)")
	introspectCmd.Flags().BoolVar(&introspectOpts.xml, "xml", false,
		"Include the raw introspection XML")
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	transport, client, err := connect()
	if err != nil {
		return err
	}

	dest := introspectOpts.dest
	if dest == "" {
		dest = cfg.DBus.Destination
	}
	path := godbus.ObjectPath(introspectOpts.path)
	if path == "" {
		path = godbus.ObjectPath(cfg.DBus.DemoPath)
	}

	if dest == "" {
		service := dbus.NewDemoService(transport.Conn(), path, version, logger)
		if err := service.Export(); err != nil {
			return err
		}
		defer service.Unexport()
		dest = transport.UniqueName()
	}

	var result *dbus.Introspection
	if introspectOpts.async {
		pending, err := client.IntrospectAsync(ctx, dest, path, nil)
		if err != nil {
			return err
		}
		result, err = pending.Wait(ctx)
		if err != nil {
			return err
		}
	} else {
		result, err = client.Introspect(ctx, dest, path)
		if err != nil {
			return err
		}
	}
	logger.Debug("introspection complete", "result", result.String())

	opts := output.DefaultFormatterOptions()
	opts.ShowXML = introspectOpts.xml
	if err := newFormatter(opts).Introspection(os.Stdout, result); err != nil {
		return fmt.Errorf("failed to write introspection: %w", err)
	}
	return nil
}
