package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/altimon/internal/device"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// mockClient is a testify mock of the GATT client seam.
type mockClient struct {
	mock.Mock

	mu           sync.Mutex
	handler      ble.NotificationHandler
	disconnected chan struct{}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	// Copy so later chunk slices do not alias recorded arguments.
	buf := append([]byte(nil), value...)
	return m.Called(c, buf, noRsp).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

func (m *mockClient) notify(data []byte) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h(data)
}

func uartProfile(rxProps, txProps ble.Property) (*ble.Profile, *ble.Characteristic, *ble.Characteristic) {
	rx := &ble.Characteristic{UUID: ble.MustParse(device.NUSRXCharUUID), Property: rxProps}
	tx := &ble.Characteristic{UUID: ble.MustParse(device.NUSTXCharUUID), Property: txProps}
	return &ble.Profile{
		Services: []*ble.Service{
			{UUID: ble.MustParse("180f"), Characteristics: []*ble.Characteristic{{UUID: ble.MustParse("2a19"), Property: ble.CharRead}}},
			{UUID: ble.MustParse(device.NUSServiceUUID), Characteristics: []*ble.Characteristic{tx, rx}},
		},
	}, rx, tx
}

type UARTLinkTestSuite struct {
	suite.Suite

	logger       *logrus.Logger
	client       *mockClient
	originalDial func(ctx context.Context, address string) (gattClient, error)
	rx, tx       *ble.Characteristic
}

func (s *UARTLinkTestSuite) SetupTest() {
	s.logger, _ = test.NewNullLogger()
	s.client = &mockClient{disconnected: make(chan struct{})}
	s.originalDial = dialClient
	dialClient = func(ctx context.Context, address string) (gattClient, error) {
		return s.client, nil
	}

	var profile *ble.Profile
	profile, s.rx, s.tx = uartProfile(ble.CharNotify, ble.CharWrite|ble.CharWriteNR)
	s.client.On("DiscoverProfile", true).Return(profile, nil)
}

func (s *UARTLinkTestSuite) TearDownTest() {
	dialClient = s.originalDial
}

func (s *UARTLinkTestSuite) dial(opts *device.ConnectOptions) *UARTLink {
	link, err := NewDialer(s.logger).Dial(context.Background(), "AA:BB:CC:DD:EE:FF", opts)
	s.Require().NoError(err, "dial MUST succeed")
	s.Require().IsType(&UARTLink{}, link)
	return link.(*UARTLink)
}

func (s *UARTLinkTestSuite) TestDial_ResolvesUARTCharacteristics() {
	link := s.dial(nil)

	s.Equal("AA:BB:CC:DD:EE:FF", link.Address())
	s.Same(s.rx, link.rx)
	s.Same(s.tx, link.tx)
	s.Equal(DefaultBLEWriteChunkSize, link.chunkSize)
	s.NoError(link.ConnectionContext().Err())
}

func (s *UARTLinkTestSuite) TestDial_EmptyAddress() {
	_, err := NewDialer(s.logger).Dial(context.Background(), "  ", nil)
	s.ErrorContains(err, "address is empty")
}

func (s *UARTLinkTestSuite) TestDial_DialFailure() {
	dialClient = func(ctx context.Context, address string) (gattClient, error) {
		return nil, errors.New("device not connected")
	}

	_, err := NewDialer(s.logger).Dial(context.Background(), "AA:BB:CC:DD:EE:FF", nil)
	s.Error(err)
	s.Contains(err.Error(), "AA:BB:CC:DD:EE:FF")
}

func (s *UARTLinkTestSuite) TestDial_MissingService() {
	client := &mockClient{disconnected: make(chan struct{})}
	client.On("DiscoverProfile", true).Return(&ble.Profile{
		Services: []*ble.Service{{UUID: ble.MustParse("180d")}},
	}, nil)
	client.On("CancelConnection").Return(nil)
	dialClient = func(ctx context.Context, address string) (gattClient, error) {
		return client, nil
	}

	_, err := NewDialer(s.logger).Dial(context.Background(), "AA:BB:CC:DD:EE:FF", nil)

	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("service", nf.Resource)
	client.AssertCalled(s.T(), "CancelConnection")
}

func (s *UARTLinkTestSuite) TestDial_MissingTXCharacteristic() {
	rx := &ble.Characteristic{UUID: ble.MustParse(device.NUSRXCharUUID), Property: ble.CharNotify}
	client := &mockClient{disconnected: make(chan struct{})}
	client.On("DiscoverProfile", true).Return(&ble.Profile{
		Services: []*ble.Service{{UUID: ble.MustParse(device.NUSServiceUUID), Characteristics: []*ble.Characteristic{rx}}},
	}, nil)
	client.On("CancelConnection").Return(nil)
	dialClient = func(ctx context.Context, address string) (gattClient, error) {
		return client, nil
	}

	_, err := NewDialer(s.logger).Dial(context.Background(), "AA:BB:CC:DD:EE:FF", nil)

	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("characteristic", nf.Resource)
	s.Equal(device.NUSTXCharUUID, nf.UUIDs[1])
}

func (s *UARTLinkTestSuite) TestSubscribe_DeliversCopies() {
	link := s.dial(nil)
	s.client.On("Subscribe", s.rx, false, mock.Anything).Return(nil)

	var got []device.Notification
	s.Require().NoError(link.Subscribe(func(n device.Notification) {
		got = append(got, n)
	}))

	raw := []byte("A:12.5")
	s.client.notify(raw)
	raw[0] = 'X'

	s.Require().Len(got, 1)
	s.Equal("A:12.5", string(got[0].Data), "handler MUST receive a copy")
	s.False(got[0].At.IsZero())

	s.Error(link.Subscribe(func(device.Notification) {}), "second subscribe MUST fail")
}

func (s *UARTLinkTestSuite) TestSubscribe_FallsBackToIndicate() {
	link := s.dial(nil)
	link.rx = &ble.Characteristic{UUID: s.rx.UUID, Property: ble.CharIndicate}
	s.client.On("Subscribe", link.rx, true, mock.Anything).Return(nil)

	s.NoError(link.Subscribe(func(device.Notification) {}))
	s.True(link.indicate)
}

func (s *UARTLinkTestSuite) TestSubscribe_NotNotifiable() {
	link := s.dial(nil)
	link.rx = &ble.Characteristic{UUID: s.rx.UUID, Property: ble.CharRead}

	s.ErrorContains(link.Subscribe(func(device.Notification) {}), "does not support notifications")
}

func (s *UARTLinkTestSuite) TestWrite_ChunksPayload() {
	link := s.dial(&device.ConnectOptions{WriteChunkSize: 4, WriteDelay: time.Millisecond})
	s.client.On("WriteCharacteristic", s.tx, mock.Anything, false).Return(nil)

	s.Require().NoError(link.Write([]byte("RESET-ALT")))

	s.client.AssertNumberOfCalls(s.T(), "WriteCharacteristic", 3)
	s.client.AssertCalled(s.T(), "WriteCharacteristic", s.tx, []byte("RESE"), false)
	s.client.AssertCalled(s.T(), "WriteCharacteristic", s.tx, []byte("T-AL"), false)
	s.client.AssertCalled(s.T(), "WriteCharacteristic", s.tx, []byte("T"), false)
}

func (s *UARTLinkTestSuite) TestWrite_WithoutResponseOnly() {
	link := s.dial(nil)
	link.tx = &ble.Characteristic{UUID: s.tx.UUID, Property: ble.CharWriteNR}
	s.client.On("WriteCharacteristic", link.tx, []byte("Z"), true).Return(nil)

	s.NoError(link.Write([]byte("Z")))
}

func (s *UARTLinkTestSuite) TestWrite_Error() {
	link := s.dial(nil)
	s.client.On("WriteCharacteristic", s.tx, mock.Anything, false).Return(errors.New("device not connected"))

	err := link.Write([]byte("PING"))
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *UARTLinkTestSuite) TestRemoteDisconnectCancelsContext() {
	link := s.dial(nil)

	close(s.client.disconnected)

	select {
	case <-link.ConnectionContext().Done():
	case <-time.After(2 * time.Second):
		s.FailNow("connection context MUST be cancelled on remote disconnect")
	}
	s.ErrorIs(context.Cause(link.ConnectionContext()), device.ErrNotConnected)
	s.ErrorIs(link.Write([]byte("x")), device.ErrNotConnected)
}

func (s *UARTLinkTestSuite) TestClose_UnsubscribesOnce() {
	link := s.dial(nil)
	s.client.On("Subscribe", s.rx, false, mock.Anything).Return(nil)
	s.client.On("Unsubscribe", s.rx, false).Return(nil)
	s.client.On("CancelConnection").Return(nil)

	s.Require().NoError(link.Subscribe(func(device.Notification) {}))
	s.NoError(link.Close())
	s.NoError(link.Close(), "second close MUST be a no-op")

	s.client.AssertNumberOfCalls(s.T(), "Unsubscribe", 1)
	s.client.AssertNumberOfCalls(s.T(), "CancelConnection", 1)
	s.ErrorIs(context.Cause(link.ConnectionContext()), context.Canceled)
	s.ErrorIs(link.Subscribe(func(device.Notification) {}), device.ErrNotConnected)
}

func (s *UARTLinkTestSuite) TestClose_ReportsErrors() {
	link := s.dial(nil)
	s.client.On("CancelConnection").Return(errors.New("hci: busy"))

	s.ErrorContains(link.Close(), "hci: busy")
}

func TestUARTLinkTestSuite(t *testing.T) {
	suite.Run(t, new(UARTLinkTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		msg    string
		target error
	}{
		{"central manager has invalid state: have=4 want=5: is Bluetooth turned on?", device.ErrBluetoothOff},
		{"Bluetooth is turned off", device.ErrBluetoothOff},
		{"device not connected", device.ErrNotConnected},
		{"peripheral disconnected", device.ErrNotConnected},
		{"device already connected", device.ErrAlreadyConnected},
		{"connection is not initialized", device.ErrNotInitialized},
		{"context deadline exceeded", device.ErrTimeout},
		{"hci: operation not supported", device.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := NormalizeError(errors.New(tt.msg))
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v to wrap %v", err, tt.target)
			}
		})
	}

	other := errors.New("something else")
	if NormalizeError(other) != other {
		t.Fatal("unknown errors MUST pass through unchanged")
	}
	if NormalizeError(nil) != nil {
		t.Fatal("nil MUST stay nil")
	}

	wrapped := fmt.Errorf("write failed: %w", device.ErrNotConnected)
	if NormalizeError(wrapped) != wrapped {
		t.Fatal("already classified errors MUST pass through unchanged")
	}
}
