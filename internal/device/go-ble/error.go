package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/altimon/internal/device"
)

// errorRule maps a go-ble message fragment to a device sentinel.
type errorRule struct {
	fragment string
	target   error
}

// errorRules are checked in order, so more specific fragments come first.
// The macOS central reports a powered-off adapter as state 4.
var errorRules = []errorRule{
	{"have=4 want=5", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"device already connected", device.ErrAlreadyConnected},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
	{"connection is not initialized", device.ErrNotInitialized},
	{"deadline exceeded", device.ErrTimeout},
	{"timed out", device.ErrTimeout},
	{"not supported", device.ErrUnsupported},
}

// NormalizeError classifies errors from go-ble while dialing, scanning or
// talking to the UART characteristics. The original error stays in the
// message; errors already carrying a device sentinel and unknown errors are
// returned unchanged.
func NormalizeError(err error) error {
	if err == nil || classified(err) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, r := range errorRules {
		if strings.Contains(msg, r.fragment) {
			return fmt.Errorf("%w: %v", r.target, err)
		}
	}
	return err
}

func classified(err error) bool {
	for _, target := range []error{
		device.ErrBluetoothOff,
		device.ErrNotConnected,
		device.ErrAlreadyConnected,
		device.ErrNotInitialized,
		device.ErrTimeout,
		device.ErrUnsupported,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
