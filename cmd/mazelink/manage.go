package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/mazelink/internal/identity"
)

// forgetCmd represents the forget command
var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget the remembered maze device",
	Long:  `Forget the device remembered from the last session, so the next watch scans again.`,
	Args:  cobra.NoArgs,
	RunE:  runForget,
}

// flushCmd represents the flush command
var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Send queued game results to the backend",
	Long:  `Send game results that could not be delivered earlier, oldest first.`,
	Args:  cobra.NoArgs,
	RunE:  runFlush,
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [device-id]",
	Short: "List the game results the backend stored for a device",
	Long: `List the game results the backend stored for a device. Without an
argument the remembered device is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runForget(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	path, err := cfg.IdentityPath()
	if err != nil {
		return err
	}
	store := identity.NewStore(path, logger)

	id, err := store.Load()
	if errors.Is(err, identity.ErrNoIdentity) {
		fmt.Fprintln(cmd.OutOrStdout(), "No device remembered")
		return nil
	}
	if err != nil {
		logger.WithError(err).Warn("Remembered device is unreadable; removing it")
	}
	if err := store.Forget(); err != nil {
		return err
	}
	if id.DeviceID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", id.Handle())
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Forgot remembered device")
	}
	return nil
}

func runFlush(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	sink, err := openResultSink(cfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	res, err := sink.flush(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d, rejected %d, still queued %d\n", res.Delivered, res.Rejected, res.Remaining)
	return err
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	deviceID := ""
	if len(args) == 1 {
		deviceID = args[0]
	} else {
		path, err := cfg.IdentityPath()
		if err != nil {
			return err
		}
		id, err := identity.NewStore(path, logger).Load()
		if err != nil {
			return err
		}
		deviceID = id.DeviceID
	}

	client, err := newBackendClient(cfg, logger)
	if err != nil {
		return err
	}
	records, err := client.History(cmd.Context(), deviceID)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results stored for %s\n", deviceID)
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tCOMPLETED\tALARM\tBATTERY")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%t\t%t\t%d%%\n", r.Timestamp, r.MazeCompleted, r.AlarmActive, r.BatteryLevel)
	}
	return w.Flush()
}
