package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/altimon/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *BLEAdvertisement) Connectable() bool { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *BLEAdvertisement) Addr() string      { return a.adv.Addr().String() }

// Services returns advertised service UUIDs in normalized form.
func (a *BLEAdvertisement) Services() []string {
	bleServices := a.adv.Services()
	result := make([]string, 0, len(bleServices))
	for _, svc := range bleServices {
		if n := device.NormalizeUUID(svc.String()); n != "" {
			result = append(result, n)
		}
	}
	return result
}

// AdvertisesUART reports whether the advertisement lists the Nordic UART service.
func AdvertisesUART(adv device.Advertisement) bool {
	for _, svc := range adv.Services() {
		if device.SameUUID(svc, device.NUSServiceUUID) {
			return true
		}
	}
	return false
}
