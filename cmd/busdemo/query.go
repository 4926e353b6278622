package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/adapter/output"
)

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "List the notification server's capabilities",
	Args:  cobra.NoArgs,
	RunE:  runCaps,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the notification server's name, vendor and version",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a notification by the id Notify returned",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

func init() {
	rootCmd.AddCommand(capsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(closeCmd)
}

func runCaps(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, client, err := connect()
	if err != nil {
		return err
	}

	caps, err := client.Capabilities(ctx)
	if err != nil {
		return err
	}
	return newFormatter(output.DefaultFormatterOptions()).Value(os.Stdout, caps)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, client, err := connect()
	if err != nil {
		return err
	}

	info, err := client.ServerInformation(ctx)
	if err != nil {
		return err
	}
	return newFormatter(output.DefaultFormatterOptions()).Value(os.Stdout, info)
}

func runClose(cmd *cobra.Command, args []string) error {
	id, err := parseNotificationID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, client, err := connect()
	if err != nil {
		return err
	}

	if err := client.CloseNotification(ctx, id); err != nil {
		return err
	}
	logger.Info("notification closed", "id", id)
	return nil
}

// parseNotificationID parses a server-assigned id. Zero is never assigned.
func parseNotificationID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid notification id %q", s)
	}
	return uint32(v), nil
}
