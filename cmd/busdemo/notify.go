package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/adapter/input"
	"github.com/jmylchreest/busdemo/internal/adapter/output"
	"github.com/jmylchreest/busdemo/internal/config"
	"github.com/jmylchreest/busdemo/internal/dbus"
)

var notifyOpts struct {
	async     bool
	appName   string
	icon      string
	summary   string
	body      string
	urgency   string
	category  string
	transient bool
	actions   []string
	expire    int32
	replaces  int64
	wait      time.Duration
	from      string
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a desktop notification",
	Long: `Send a notification to org.freedesktop.Notifications and print the id
the server assigned.

Unset flags fall back to the [notification] section of the config file.

Examples:
  # Send the configured notification and wait for the reply
  busdemo notify

  # Send asynchronously with two action buttons
  busdemo notify --async --summary "Build finished" --action default=Open --action dismiss=Dismiss

  # Replace notification 12 and watch for a click for up to a minute
  busdemo notify --replaces 12 --action default=Open --wait 1m

  # Send a batch of requests (JSON array, JSON lines or YAML) concurrently
  busdemo notify --async --from batch.yaml

  # Replay dunst's history
  busdemo notify --from dunst`,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	notifyCmd.Flags().BoolVar(&notifyOpts.async, "async", false,
		"Send without blocking and wait on the pending call")
	notifyCmd.Flags().StringVar(&notifyOpts.appName, "app-name", "",
		"Application name")
	notifyCmd.Flags().StringVar(&notifyOpts.icon, "icon", "",
		"Icon name or file URI")
	notifyCmd.Flags().StringVar(&notifyOpts.summary, "summary", "",
		"Notification title")
	notifyCmd.Flags().StringVar(&notifyOpts.body, "body", "",
		"Notification body")
	notifyCmd.Flags().StringVarP(&notifyOpts.urgency, "urgency", "u", "",
		"Urgency (low, normal, critical)")
	notifyCmd.Flags().StringVar(&notifyOpts.category, "category", "",
		"Category hint (e.g., email.arrived)")
	notifyCmd.Flags().BoolVar(&notifyOpts.transient, "transient", false,
		"Ask the server not to keep the notification in its history")
	notifyCmd.Flags().StringArrayVarP(&notifyOpts.actions, "action", "a", nil,
		"Action as key=label (repeatable)")
	notifyCmd.Flags().Int32VarP(&notifyOpts.expire, "expire", "t", dbus.ExpireDefault,
		"Expire timeout in ms (-1 server default, 0 never)")
	notifyCmd.Flags().Int64Var(&notifyOpts.replaces, "replaces", 0,
		"Id of a notification to replace")
	notifyCmd.Flags().DurationVar(&notifyOpts.wait, "wait", 0,
		"Print action and close signals for this long after sending")
	notifyCmd.Flags().StringVar(&notifyOpts.from, "from", "",
		"Send the requests read from a source instead (stdin, dunst or a file)")
}

func runNotify(cmd *cobra.Command, args []string) error {
	if notifyOpts.from != "" {
		return runNotifyBatch(notifyOpts.from)
	}

	req, err := buildRequest(cmd, cfg.Notification)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	transport, client, err := connect()
	if err != nil {
		return err
	}

	// Subscribe before sending so a fast server cannot beat us
	var events <-chan dbus.SignalEvent
	if notifyOpts.wait > 0 {
		events, err = dbus.WatchSignals(ctx, transport.Conn())
		if err != nil {
			return err
		}
	}

	var result dbus.Result
	if notifyOpts.async {
		pending, err := client.NotifyAsync(ctx, req, nil)
		if err != nil {
			return err
		}
		logger.Debug("notification sent", "state", pending.State())
		result, err = pending.Wait(ctx)
		if err != nil {
			return err
		}
	} else {
		result, err = client.Notify(ctx, req)
		if err != nil {
			return err
		}
	}

	formatter := newFormatter(output.DefaultFormatterOptions())
	if err := formatter.Value(os.Stdout, result); err != nil {
		return err
	}

	if events != nil {
		return waitForSignals(ctx, events, result.ID, notifyOpts.wait)
	}
	return nil
}

// runNotifyBatch sends every request from a source. With --async all of
// them are in flight at once and the replies are collected in order.
func runNotifyBatch(from string) error {
	ctx, cancel := signalContext()
	defer cancel()

	source, err := input.NewSource(from)
	if err != nil {
		return err
	}
	requests, err := source.Requests(ctx)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Println("No notifications to send")
		return nil
	}

	_, client, err := connect()
	if err != nil {
		return err
	}

	results := make([]dbus.Result, len(requests))
	errs := make([]error, len(requests))
	if notifyOpts.async {
		pending := make([]*dbus.Pending[dbus.Result], len(requests))
		for i, req := range requests {
			pending[i], errs[i] = client.NotifyAsync(ctx, req, nil)
		}
		for i, p := range pending {
			if p != nil {
				results[i], errs[i] = p.Wait(ctx)
			}
		}
	} else {
		for i, req := range requests {
			results[i], errs[i] = client.Notify(ctx, req)
		}
	}

	formatter := newFormatter(output.DefaultFormatterOptions())
	failed := 0
	for i := range requests {
		if errs[i] != nil {
			failed++
			logger.Error("notification failed", "source", source.Name(), "index", i+1, "error", errs[i])
			continue
		}
		if err := formatter.Value(os.Stdout, results[i]); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d notifications failed", failed, len(requests))
	}
	return nil
}

// buildRequest overlays the flags the user set on the configured
// notification.
func buildRequest(cmd *cobra.Command, base config.NotificationConfig) (dbus.NotificationRequest, error) {
	flags := cmd.Flags()
	if flags.Changed("app-name") {
		base.AppName = notifyOpts.appName
	}
	if flags.Changed("icon") {
		base.Icon = notifyOpts.icon
	}
	if flags.Changed("summary") {
		base.Summary = notifyOpts.summary
	}
	if flags.Changed("body") {
		base.Body = notifyOpts.body
	}
	if flags.Changed("urgency") {
		if _, err := config.ParseUrgency(notifyOpts.urgency); err != nil {
			return dbus.NotificationRequest{}, err
		}
		base.Urgency = notifyOpts.urgency
	}
	if flags.Changed("category") {
		base.Category = notifyOpts.category
	}
	if flags.Changed("transient") {
		base.Transient = notifyOpts.transient
	}
	if flags.Changed("expire") {
		base.ExpireTimeout = notifyOpts.expire
	}
	if flags.Changed("action") {
		actions, err := parseActions(notifyOpts.actions)
		if err != nil {
			return dbus.NotificationRequest{}, err
		}
		base.Actions = actions
	}

	req := base.Request()
	req.ReplacesID = notifyOpts.replaces
	return req, nil
}

// parseActions parses key=label pairs. A bare key is its own label.
func parseActions(pairs []string) ([]config.ActionConfig, error) {
	actions := make([]config.ActionConfig, 0, len(pairs))
	for _, pair := range pairs {
		key, label, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid action %q: empty key", pair)
		}
		if !found {
			label = key
		}
		actions = append(actions, config.ActionConfig{Key: key, Label: label})
	}
	return actions, nil
}

// waitForSignals prints the signals for id until it is closed, the wait
// elapses or ctx is cancelled.
func waitForSignals(ctx context.Context, events <-chan dbus.SignalEvent, id uint32, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			logger.Debug("stopped waiting for signals", "id", id)
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.ID != id {
				continue
			}
			fmt.Println(formatSignal(ev))
			if ev.Kind == dbus.SignalNotificationClosed {
				return nil
			}
		}
	}
}

func formatSignal(ev dbus.SignalEvent) string {
	switch ev.Kind {
	case dbus.SignalActionInvoked:
		return fmt.Sprintf("%s id=%d action=%s", ev.Kind, ev.ID, ev.ActionKey)
	case dbus.SignalNotificationClosed:
		return fmt.Sprintf("%s id=%d reason=%s", ev.Kind, ev.ID, ev.Reason)
	default:
		return fmt.Sprintf("%s id=%d", ev.Kind, ev.ID)
	}
}
