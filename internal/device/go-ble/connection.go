package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/groutine"
)

// ----------------------------
// Configuration Constants
// ----------------------------

const (
	// DefaultBLEWriteChunkSize is the maximum number of bytes to write in a single BLE operation.
	// BLE 4.0/4.1 spec defines ATT_MTU of 23 bytes (20 bytes payload after ATT header overhead).
	// Keeping chunks at 20 bytes ensures compatibility with all BLE versions.
	DefaultBLEWriteChunkSize = 20

	// DefaultBLEWriteDelay is the delay between consecutive write chunks.
	// This prevents overwhelming the BLE peripheral's receive buffer and ensures reliable delivery.
	DefaultBLEWriteDelay = 10 * time.Millisecond

	// DefaultConnectTimeout bounds dialing and profile discovery.
	DefaultConnectTimeout = 30 * time.Second
)

// ----------------------------
// Device Factory
// ----------------------------

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDefaultDevice

// gattClient is the part of ble.Client the UART link needs.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// dialClient connects to address and returns a GATT client (can be overridden in tests)
var dialClient = func(ctx context.Context, address string) (gattClient, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}

// ----------------------------
// Dialer
// ----------------------------

// Dialer opens Nordic UART links over BLE.
type Dialer struct {
	logger *logrus.Logger
}

// NewDialer creates a BLE dialer. A nil logger is replaced by a new one.
func NewDialer(logger *logrus.Logger) *Dialer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dialer{logger: logger}
}

// Dial connects to the peripheral, discovers its profile and resolves the
// Nordic UART service with both characteristics.
func (d *Dialer) Dial(ctx context.Context, address string, opts *device.ConnectOptions) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		d.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	if opts == nil {
		opts = &device.ConnectOptions{}
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	d.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := dialClient(connCtx, address)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address \"%s\": %w", address, err)
	}

	d.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		d.abort(client, "profile discovery")
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	rx, tx, err := findUART(profile)
	if err != nil {
		d.abort(client, "service lookup")
		return nil, err
	}

	link := newUARTLink(ctx, address, client, rx, tx, opts, d.logger)

	d.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")
	return link, nil
}

func (d *Dialer) abort(client gattClient, stage string) {
	if cancelErr := client.CancelConnection(); cancelErr != nil {
		d.logger.WithFields(logrus.Fields{
			"stage":        stage,
			"cancel_error": cancelErr,
		}).Warn("Failed to cancel connection after setup failure")
	}
}

// findUART locates the Nordic UART service and its RX (notify) and TX (write) characteristics.
func findUART(profile *ble.Profile) (rx, tx *ble.Characteristic, err error) {
	var svc *ble.Service
	if profile != nil {
		for _, s := range profile.Services {
			if device.SameUUID(s.UUID.String(), device.NUSServiceUUID) {
				svc = s
				break
			}
		}
	}
	if svc == nil {
		return nil, nil, &device.NotFoundError{Resource: "service", UUIDs: []string{device.NUSServiceUUID}}
	}

	for _, c := range svc.Characteristics {
		switch {
		case device.SameUUID(c.UUID.String(), device.NUSRXCharUUID):
			rx = c
		case device.SameUUID(c.UUID.String(), device.NUSTXCharUUID):
			tx = c
		}
	}
	if rx == nil {
		return nil, nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{device.NUSServiceUUID, device.NUSRXCharUUID}}
	}
	if tx == nil {
		return nil, nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{device.NUSServiceUUID, device.NUSTXCharUUID}}
	}
	return rx, tx, nil
}

// ----------------------------
// UART Link
// ----------------------------

// UARTLink is a live Nordic UART connection.
type UARTLink struct {
	address    string
	client     gattClient
	rx         *ble.Characteristic
	tx         *ble.Characteristic
	chunkSize  int
	writeDelay time.Duration
	logger     *logrus.Logger

	writeMutex sync.Mutex
	connMutex  sync.Mutex
	subscribed bool
	indicate   bool
	closed     bool

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newUARTLink(parent context.Context, address string, client gattClient, rx, tx *ble.Characteristic, opts *device.ConnectOptions, logger *logrus.Logger) *UARTLink {
	chunk := opts.WriteChunkSize
	if chunk <= 0 {
		chunk = DefaultBLEWriteChunkSize
	}
	delay := opts.WriteDelay
	if delay <= 0 {
		delay = DefaultBLEWriteDelay
	}

	l := &UARTLink{
		address:    address,
		client:     client,
		rx:         rx,
		tx:         tx,
		chunkSize:  chunk,
		writeDelay: delay,
		logger:     logger,
	}
	// Derive from the caller's context to tie lifecycle; the cause tells
	// subscribers why the link ended.
	l.ctx, l.cancel = context.WithCancelCause(parent)

	// Monitor go-ble client Disconnected() channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(l.ctx, "ble-disconnect-watch", func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				l.logger.WithField("address", address).Warn("Peripheral reported disconnection, cancelling connection context")
				l.cancel(device.ErrNotConnected)
			case <-ctx.Done():
			}
		})
	} else {
		l.logger.Debug("Client does not support Disconnected() channel")
	}

	return l
}

// Address returns the peripheral address.
func (l *UARTLink) Address() string {
	return l.address
}

// ConnectionContext is cancelled when the link goes down.
func (l *UARTLink) ConnectionContext() context.Context {
	return l.ctx
}

// Subscribe enables RX notifications (indications when notify is not offered).
// Every notification is copied before it reaches the handler.
func (l *UARTLink) Subscribe(handler func(device.Notification)) error {
	if handler == nil {
		return fmt.Errorf("no notification handler specified")
	}

	l.connMutex.Lock()
	defer l.connMutex.Unlock()

	if l.closed || l.ctx.Err() != nil {
		return device.ErrNotConnected
	}
	if l.subscribed {
		return fmt.Errorf("already subscribed to %s", device.ShortenUUID(device.NormalizeUUID(device.NUSRXCharUUID)))
	}

	ind := false
	switch {
	case l.rx.Property&ble.CharNotify != 0:
	case l.rx.Property&ble.CharIndicate != 0:
		ind = true
	default:
		return fmt.Errorf("characteristic %s does not support notifications", device.ShortenUUID(device.NormalizeUUID(device.NUSRXCharUUID)))
	}

	err := l.client.Subscribe(l.rx, ind, func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		handler(device.Notification{At: time.Now(), Data: buf})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", NormalizeError(err))
	}

	l.subscribed = true
	l.indicate = ind
	l.logger.WithField("address", l.address).Debug("Subscribed to UART RX notifications")
	return nil
}

// Write sends data to the TX characteristic in chunks of at most chunkSize
// bytes. Write-with-response is used when the characteristic offers it.
func (l *UARTLink) Write(data []byte) error {
	l.connMutex.Lock()
	closed := l.closed || l.ctx.Err() != nil
	l.connMutex.Unlock()
	if closed {
		return device.ErrNotConnected
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	noRsp := l.tx.Property&ble.CharWrite == 0
	for offset := 0; offset < len(data); offset += l.chunkSize {
		if offset > 0 {
			time.Sleep(l.writeDelay)
		}
		end := offset + l.chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := l.client.WriteCharacteristic(l.tx, data[offset:end], noRsp); err != nil {
			return fmt.Errorf("write failed at byte %d: %w", offset, NormalizeError(err))
		}
	}

	l.logger.WithFields(logrus.Fields{
		"address": l.address,
		"bytes":   len(data),
	}).Debug("Wrote to UART TX")
	return nil
}

// Close unsubscribes, cancels the connection and the connection context.
func (l *UARTLink) Close() error {
	l.connMutex.Lock()
	if l.closed {
		l.connMutex.Unlock()
		return nil
	}
	l.closed = true
	subscribed := l.subscribed
	l.subscribed = false
	l.connMutex.Unlock()

	l.logger.WithField("address", l.address).Info("Disconnecting BLE device...")

	var errs []error
	if subscribed {
		if err := l.client.Unsubscribe(l.rx, l.indicate); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	if err := l.client.CancelConnection(); err != nil {
		errs = append(errs, fmt.Errorf("cancel connection: %w", err))
	}

	// Normal disconnection, no error cause
	l.cancel(nil)

	err := errors.Join(errs...)
	if err != nil {
		l.logger.WithField("error", err).Warn("BLE device disconnected with errors")
	} else {
		l.logger.Info("BLE device disconnected successfully")
	}
	return err
}
