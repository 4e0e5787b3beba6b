package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/dashboard"
	"github.com/srg/altimon/internal/groutine"
	"github.com/srg/altimon/internal/session"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <device-address> <text>",
	Short: "Send a text command to the device",
	Long: fmt.Sprintf(`Connects, writes a text command to the Nordic UART RX characteristic and
disconnects. The text is sent as typed; use --newline to terminate it.

Examples:
  # Send a command
  altimon send %s ZERO

  # Send and show the device output for two seconds
  altimon send %s ZERO --wait 2s

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var (
	sendConnect connectFlags
	sendNewline bool
	sendWait    time.Duration
	sendVerbose bool
)

func init() {
	sendConnect.register(sendCmd)
	sendCmd.Flags().BoolVarP(&sendNewline, "newline", "n", false, "Append a newline to the command")
	sendCmd.Flags().DurationVarP(&sendWait, "wait", "w", 0, "Keep the link open and print device output for this long after sending")
	sendCmd.Flags().BoolVar(&sendVerbose, "verbose", false, "Enable debug logging")
}

func runSend(cmd *cobra.Command, args []string) error {
	address, text := args[0], args[1]
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("command text cannot be empty")
	}
	if sendWait < 0 {
		return fmt.Errorf("invalid --wait %s: must not be negative", sendWait)
	}
	if sendNewline {
		text += "\n"
	}

	cfg, logger, err := setup(cmd, "verbose")
	if err != nil {
		return err
	}
	sendConnect.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := withInterrupt(cmd.Context(), cmd, "disconnecting")
	defer cancel()

	activity := activitylog.New(cfg.LogLimit, logger)

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "Connecting")
	progress.Start()
	link, err := connect(ctx, address, cfg, activity, logger)
	progress.Stop()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := link.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close link")
		}
	}()

	opts := session.Options{Log: activity, Logger: logger, QueueSize: uint32(cfg.QueueSize)}
	if sendWait > 0 {
		out := cmd.OutOrStdout()
		opts.Display = dashboard.NewPlain(out, !isTerminal(out))
	}
	sess, err := session.New(link, opts)
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)
	groutine.Go(runCtx, "session", func(ctx context.Context) { runErr <- sess.Run(ctx) })

	if err := sess.SendCommand(ctx, text); err != nil {
		stop()
		<-runErr
		return fmt.Errorf("failed to send command: %w", err)
	}

	if sendWait > 0 {
		select {
		case <-time.After(sendWait):
		case <-ctx.Done():
		case <-sess.Done():
		}
	}

	stop()
	if err := <-runErr; err != nil {
		return err
	}

	if sendWait == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), session.MsgCommandSent+"\n", strings.TrimRight(text, "\n"))
	}
	return nil
}
