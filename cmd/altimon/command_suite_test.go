package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/devicefactory"
	"github.com/stretchr/testify/suite"
)

const testDeviceAddress = "AA:BB:CC:DD:EE:FF"

// scriptedLink replays frames after Subscribe and optionally drops the link.
type scriptedLink struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	frames   []string
	drop     bool
	writeErr error

	mu      sync.Mutex
	written []string
	closed  bool
}

func newScriptedLink(drop bool, frames ...string) *scriptedLink {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &scriptedLink{ctx: ctx, cancel: cancel, frames: frames, drop: drop}
}

func (l *scriptedLink) Address() string { return testDeviceAddress }

func (l *scriptedLink) Subscribe(h func(device.Notification)) error {
	go func() {
		for _, f := range l.frames {
			h(device.Notification{At: time.Now(), Data: []byte(f)})
		}
		if l.drop {
			l.cancel(device.ErrNotConnected)
		}
	}()
	return nil
}

func (l *scriptedLink) Write(data []byte) error {
	if l.writeErr != nil {
		return l.writeErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.written = append(l.written, string(data))
	return nil
}

func (l *scriptedLink) ConnectionContext() context.Context { return l.ctx }

func (l *scriptedLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel(device.ErrNotConnected)
	return nil
}

func (l *scriptedLink) writes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.written...)
}

func (l *scriptedLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// fakeDialer hands out a prepared link and records the dial.
type fakeDialer struct {
	link    device.Link
	err     error
	address string
	opts    *device.ConnectOptions
}

func (d *fakeDialer) Dial(_ context.Context, address string, opts *device.ConnectOptions) (device.Link, error) {
	d.address = address
	d.opts = opts
	if d.err != nil {
		return nil, d.err
	}
	return d.link, nil
}

// CommandTestSuite swaps the transport factories and resets command flags
// between tests.
type CommandTestSuite struct {
	suite.Suite

	originalDialer  func(string, int, *logrus.Logger) (device.Dialer, error)
	originalScanner func() (device.Scanner, error)

	dialer    *fakeDialer
	transport string
	baud      int
}

func (s *CommandTestSuite) SetupTest() {
	s.originalDialer = devicefactory.DialerFactory
	s.originalScanner = devicefactory.ScannerFactory

	s.dialer = &fakeDialer{}
	s.transport, s.baud = "", 0
	devicefactory.DialerFactory = func(transport string, baud int, _ *logrus.Logger) (device.Dialer, error) {
		s.transport, s.baud = transport, baud
		return s.dialer, nil
	}

	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.DialerFactory = s.originalDialer
	devicefactory.ScannerFactory = s.originalScanner
	rootCmd.SetIn(nil)
}

// resetFlags restores every flag of cmd and its children to the default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// ExecuteWithInput runs the root command with stdin set to input.
func (s *CommandTestSuite) ExecuteWithInput(input string, args ...string) (string, error) {
	rootCmd.SetIn(strings.NewReader(input))
	return s.ExecuteCommand(args...)
}
