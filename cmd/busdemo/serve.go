package main

import (
	"slices"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

var serveOpts struct {
	invoke      string
	invokeAfter time.Duration
	noDemo      bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a loopback notification server",
	Long: `Claim org.freedesktop.Notifications on the session bus and answer Notify,
CloseNotification, GetCapabilities and GetServerInformation, logging each
notification received. Useful on sessions without a notification daemon.

The demo object is exported as well so it can be introspected by name.
Runs until interrupted.

Examples:
  busdemo serve -v

  # Click the "default" action two seconds after each notification
  busdemo serve --invoke default --invoke-after 2s`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveOpts.invoke, "invoke", "",
		"Action key to invoke on each notification (closes it if the action is absent)")
	serveCmd.Flags().DurationVar(&serveOpts.invokeAfter, "invoke-after", time.Second,
		"Delay before --invoke fires")
	serveCmd.Flags().BoolVar(&serveOpts.noDemo, "no-demo", false,
		"Do not export the demo object")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	transport, err := dbus.SessionTransport()
	if err != nil {
		return err
	}
	conn := transport.Conn()

	server := dbus.NewLoopbackServer(conn, logger)
	info := dbus.DefaultServerInfo()
	info.Version = version
	server.SetServerInfo(info)

	server.SetNotifyHandler(func(p dbus.Payload, id uint32) {
		if serveOpts.invoke == "" {
			return
		}
		time.AfterFunc(serveOpts.invokeAfter, func() {
			invokeOrClose(server, p, id, serveOpts.invoke)
		})
	})

	if err := server.Start(); err != nil {
		return err
	}
	defer func() { _ = server.Stop() }()

	if !serveOpts.noDemo {
		service := dbus.NewDemoService(conn, godbus.ObjectPath(cfg.DBus.DemoPath), version, logger)
		if err := service.Export(); err != nil {
			return err
		}
		defer service.Unexport()
	}

	logger.Info("serving", "unique_name", transport.UniqueName())
	<-ctx.Done()
	return nil
}

// invokeOrClose fires key on notification id, or closes it when the
// notification does not offer that action.
func invokeOrClose(server *dbus.LoopbackServer, p dbus.Payload, id uint32, key string) {
	if _, open := server.Active(id); !open {
		return
	}

	hasAction := slices.ContainsFunc(p.ParsedActions(), func(a dbus.Action) bool {
		return a.Key == key
	})
	if hasAction {
		if err := server.InvokeAction(id, key); err != nil {
			logger.Warn("failed to invoke action", "id", id, "action", key, "error", err)
		}
		return
	}

	if dbusErr := server.CloseNotification(id); dbusErr != nil {
		logger.Warn("failed to close notification", "id", id, "error", dbusErr)
	}
}
