package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/session"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while monitoring.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = session.ErrConnectionLost
)

// FormatUserError turns an error chain into a message for the terminal.
// Errors without a friendlier form are returned as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &notFound):
		if notFound.Resource == "device" {
			return fmt.Sprintf("%s (is it powered on and in range? try 'altimon scan')", notFound.Error())
		}
		return fmt.Sprintf("%s (the device does not expose the Nordic UART service)", notFound.Error())
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off, enable it and try again"
	case errors.Is(err, ErrConnectionLost):
		return "connection lost: the device disconnected"
	case errors.Is(err, device.ErrNotConnected):
		return "not connected to device"
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	}
	return err.Error()
}
