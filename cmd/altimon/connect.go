package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/devicefactory"
	"github.com/srg/altimon/pkg/config"
)

// connectFlags are shared by commands that open a link.
type connectFlags struct {
	transport string
	baud      int
	timeout   time.Duration
}

func (f *connectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.transport, "transport", "t", devicefactory.TransportBLE, "Link transport (ble, serial)")
	cmd.Flags().IntVar(&f.baud, "baud", 115200, "Serial baud rate (serial transport only)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "Connection timeout")
}

// apply copies explicitly set flags over the config values.
func (f *connectFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("transport") {
		cfg.Transport = f.transport
	}
	if cmd.Flags().Changed("baud") {
		cfg.BaudRate = f.baud
	}
	if cmd.Flags().Changed("timeout") {
		cfg.ConnectTimeout = f.timeout
	}
}

// connect dials address over the configured transport, recording progress
// in the activity log.
func connect(ctx context.Context, address string, cfg *config.Config, log *activitylog.Log, logger *logrus.Logger) (device.Link, error) {
	dialer, err := devicefactory.NewDialer(cfg.Transport, cfg.BaudRate, logger)
	if err != nil {
		return nil, err
	}

	log.Addf("Device selected: %s", address)
	if cfg.Transport == devicefactory.TransportSerial {
		log.Addf("Opening serial port at %d baud...", cfg.BaudRate)
	} else {
		log.Add("Connecting to GATT server...")
	}

	link, err := dialer.Dial(ctx, address, &device.ConnectOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		WriteChunkSize: cfg.WriteChunkSize,
		WriteDelay:     cfg.WriteDelay,
	})
	if err != nil {
		log.Errorf("Connection error: %v", err)
		return nil, err
	}
	return link, nil
}

// withInterrupt returns a context cancelled on Ctrl+C or SIGTERM. The
// returned stop function releases the signal handler.
func withInterrupt(parent context.Context, cmd *cobra.Command, what string) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nCtrl+C pressed, %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
