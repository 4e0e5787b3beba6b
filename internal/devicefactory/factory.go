package devicefactory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/device/go-ble"
	"github.com/srg/altimon/internal/device/serialport"
)

// Transport names accepted by NewDialer.
const (
	TransportBLE    = "ble"
	TransportSerial = "serial"
)

// ScannerFactory creates device.Scanner instances for BLE scanning operations.
// This is a variable so that it can be overridden in tests.
var ScannerFactory = goble.NewScanner

// DialerFactory creates the dialer for a transport.
// This is a variable so that it can be overridden in tests.
var DialerFactory = func(transport string, baud int, logger *logrus.Logger) (device.Dialer, error) {
	switch transport {
	case "", TransportBLE:
		return goble.NewDialer(logger), nil
	case TransportSerial:
		return serialport.NewDialer(baud, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q (expected %s or %s)", transport, TransportBLE, TransportSerial)
	}
}

// NewDialer returns the dialer for transport.
func NewDialer(transport string, baud int, logger *logrus.Logger) (device.Dialer, error) {
	return DialerFactory(transport, baud, logger)
}
