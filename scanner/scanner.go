package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/device/go-ble"
	"github.com/srg/altimon/internal/devicefactory"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Peripheral is one discovered device.
type Peripheral struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	UART        bool      `json:"uart"`
	Services    []string  `json:"services"`
	LastSeen    time.Time `json:"last_seen"`
	Seen        int       `json:"seen"`
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	// UARTOnly keeps only peripherals advertising the Nordic UART service.
	UARTOnly  bool
	Services  []string
	AllowList []string
	BlockList []string
	// OnDiscover is called once per newly discovered peripheral.
	OnDiscover func(Peripheral)
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
		UARTOnly:        true,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	devices *hashmap.Map[string, *Peripheral]
	logger  *logrus.Logger
	now     func() time.Time
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		logger: logger,
		now:    time.Now,
	}
}

// Scan performs BLE discovery until ctx ends or opts.Duration elapses and
// returns the peripherals sorted by signal strength, strongest first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Peripheral, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	var services []string
	if len(opts.Services) > 0 {
		var err error
		services, err = device.ValidateUUID(opts.Services...)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	s.devices = hashmap.New[string, *Peripheral]()

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	dev, err := devicefactory.ScannerFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	err = dev.Scan(ctx, !opts.DuplicateFilter, func(adv device.Advertisement) {
		s.handleAdvertisement(adv, opts, services)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	return s.results(), nil
}

// handleAdvertisement updates existing or adds a new peripheral
func (s *Scanner) handleAdvertisement(adv device.Advertisement, opts *ScanOptions, services []string) {
	addr := adv.Addr()

	p, existing := s.devices.Get(addr)
	if !existing {
		if !shouldInclude(adv, opts, services) {
			return
		}
		// Advertisement callbacks are serialised by the BLE stack.
		p = &Peripheral{Address: addr}
		s.devices.Set(addr, p)
	}

	p.RSSI = adv.RSSI()
	p.Connectable = adv.Connectable()
	p.LastSeen = s.now()
	p.Seen++
	if name := adv.LocalName(); name != "" {
		p.Name = name
	}
	if svcs := adv.Services(); len(svcs) > 0 {
		p.Services = svcs
		p.UART = p.UART || goble.AdvertisesUART(adv)
	}

	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  p.Name,
			"address": p.Address,
			"rssi":    p.RSSI,
		}).Info("Discovered new device")
		if opts.OnDiscover != nil {
			opts.OnDiscover(*p)
		}
	}
}

// shouldInclude applies the allow, block, UART and service filters
func shouldInclude(adv device.Advertisement, opts *ScanOptions, services []string) bool {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if sameAddress(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if sameAddress(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if opts.UARTOnly && !goble.AdvertisesUART(adv) {
		return false
	}

	if len(services) > 0 {
		for _, required := range services {
			for _, advertised := range adv.Services() {
				if device.SameUUID(required, advertised) {
					return true
				}
			}
		}
		return false
	}

	return true
}

func (s *Scanner) results() []Peripheral {
	out := make([]Peripheral, 0, s.devices.Len())
	s.devices.Range(func(_ string, p *Peripheral) bool {
		out = append(out, *p)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
