package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/mazelink/internal/codec"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send a control command to a maze device",
	Long: `Connect to a maze device and write one command to its control attribute,
for example RESET or START. The command is sent as plain text and must fit
a single write (at most 20 bytes).`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var (
	sendDevice string
	sendRescan bool
)

func init() {
	sendCmd.Flags().StringVar(&sendDevice, "device", "", "Device address to connect to")
	sendCmd.Flags().BoolVar(&sendRescan, "rescan", false, "Ignore the remembered device and scan")
}

func runSend(cmd *cobra.Command, args []string) error {
	command := args[0]
	if _, err := codec.EncodeCommand(command); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := connect(ctx, cfg, logger, sendDevice, sendRescan)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.session.SendCommand(command); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", command, conn.handle)
	return nil
}
