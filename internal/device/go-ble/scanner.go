package goble

import (
	"context"

	ble "github.com/go-ble/ble"
	"github.com/srg/altimon/internal/device"
)

// bleScanner reports advertisements from the host adapter. Filtering for
// the Nordic UART service happens in the scanner package, so `scan --all`
// can list every peripheral in range.
type bleScanner struct {
	dev ble.Device
}

func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	err := s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	return NormalizeError(err)
}

// NewScanner opens the platform adapter for scanning.
func NewScanner() (device.Scanner, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleScanner{dev: dev}, nil
}
