package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/discovery"
	"github.com/srg/mazelink/internal/session"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for maze devices",
	Long: `Scan for MazeChallenge devices in the vicinity and list them in the
order they were discovered, with their address and signal strength.

Only devices whose advertised name contains the configured name filter
are listed; use --all to list every advertising device.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanAll      bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertising device, not only maze devices")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	r, err := newRadio(logger)
	if err != nil {
		return fmt.Errorf("failed to open Bluetooth: %w", err)
	}
	defer r.Close()

	sess := session.New(r, cfg.SessionOptions(), logger)
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var filter discovery.Filter
	if scanAll {
		filter = func(adv device.Advertisement) bool { return adv != nil }
	}

	found, err := scanDevices(ctx, sess, filter, scanDuration)
	if err != nil {
		return err
	}
	return newRenderer(cmd.OutOrStdout(), isTerminal(cmd.OutOrStdout())).devices(found, scanFormat)
}
