// Package serialport exposes the altimeter firmware's USB serial console as a
// device.Link, one notification per text line.
package serialport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/groutine"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the firmware's Serial.begin rate.
	DefaultBaudRate = 115200

	// DefaultBufferSize is the byte capacity between the port reader and the line splitter.
	DefaultBufferSize = 4096

	// MaxLineSize bounds a single line. Longer lines are dropped.
	MaxLineSize = bufio.MaxScanTokenSize

	readChunkSize = 256
)

// Port is the minimal interface needed for a serial port.
type Port interface {
	io.ReadWriteCloser
}

// OpenPort opens a serial port (can be overridden in tests)
var OpenPort = func(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Dialer opens serial links.
type Dialer struct {
	BaudRate   int
	BufferSize int
	logger     *logrus.Logger
}

// NewDialer creates a serial dialer with 8N1 framing at baud (0 selects DefaultBaudRate).
func NewDialer(baud int, logger *logrus.Logger) *Dialer {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Dialer{BaudRate: baud, BufferSize: DefaultBufferSize, logger: logger}
}

// Dial opens the port at path. opts is accepted for interface symmetry;
// serial ports open immediately and need no timeout.
func (d *Dialer) Dial(ctx context.Context, path string, _ *device.ConnectOptions) (device.Link, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("serial port path is empty")
	}

	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	d.logger.WithFields(logrus.Fields{
		"port": path,
		"baud": d.BaudRate,
	}).Info("Opening serial port...")

	port, err := OpenPort(path, mode)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("%w: %v", &device.NotFoundError{Resource: "device", UUIDs: []string{path}}, err)
		}
		return nil, fmt.Errorf("failed to open serial port %q: %w", path, err)
	}

	size := d.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return newLink(ctx, path, port, size, d.logger), nil
}

// Link is an open serial connection.
type Link struct {
	path   string
	port   Port
	buf    *ringbuffer.RingBuffer
	logger *logrus.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex
	subscribed bool
	closed     bool

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func newLink(parent context.Context, path string, port Port, size int, logger *logrus.Logger) *Link {
	l := &Link{
		path:   path,
		port:   port,
		buf:    ringbuffer.New(size).SetBlocking(true),
		logger: logger,
		done:   make(chan struct{}),
	}
	l.ctx, l.cancel = context.WithCancelCause(parent)
	groutine.Go(l.ctx, "serial-pump", func(context.Context) { l.pump() })
	return l
}

// pump copies port bytes into the ring buffer until the port fails or closes.
func (l *Link) pump() {
	defer close(l.done)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := l.port.Read(chunk)
		if n > 0 {
			if _, werr := l.buf.Write(chunk[:n]); werr != nil {
				l.buf.CloseWithError(werr)
				return
			}
		}
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if !closed {
				l.logger.WithFields(logrus.Fields{
					"port":  l.path,
					"error": err,
				}).Warn("Serial port read failed, cancelling connection context")
				l.cancel(device.ErrNotConnected)
			}
			if errors.Is(err, io.EOF) {
				l.buf.CloseWriter()
			} else {
				l.buf.CloseWithError(err)
			}
			return
		}
	}
}

// Address returns the port path.
func (l *Link) Address() string {
	return l.path
}

// ConnectionContext is cancelled when the port fails or is closed.
func (l *Link) ConnectionContext() context.Context {
	return l.ctx
}

// Subscribe starts delivering one notification per received line. Line
// terminators (\n or \r\n) are stripped.
func (l *Link) Subscribe(handler func(device.Notification)) error {
	if handler == nil {
		return fmt.Errorf("no notification handler specified")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.ctx.Err() != nil {
		return device.ErrNotConnected
	}
	if l.subscribed {
		return fmt.Errorf("already subscribed to %s", l.path)
	}
	l.subscribed = true

	groutine.Go(l.ctx, "serial-lines", func(context.Context) {
		scanner := bufio.NewScanner(l.buf)
		scanner.Buffer(make([]byte, 0, readChunkSize), MaxLineSize)
		scanner.Split(splitLines(MaxLineSize, func(n int) {
			l.logger.WithFields(logrus.Fields{
				"port":  l.path,
				"bytes": n,
			}).Warn("Dropping oversized serial line")
		}))
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			handler(device.Notification{At: time.Now(), Data: line})
		}
		if err := scanner.Err(); err != nil && l.ctx.Err() == nil {
			l.logger.WithField("error", err).Warn("Serial line reader failed, cancelling connection context")
			l.cancel(err)
		}
	})
	return nil
}

// splitLines is bufio.ScanLines that skips lines of n bytes or more
// instead of failing. onDrop receives the dropped length once the line ends.
func splitLines(n int, onDrop func(n int)) bufio.SplitFunc {
	dropped := 0
	return func(data []byte, atEOF bool) (int, []byte, error) {
		i := bytes.IndexByte(data, '\n')
		if dropped > 0 {
			if i < 0 {
				dropped += len(data)
				return len(data), nil, nil
			}
			onDrop(dropped + i)
			dropped = 0
			return i + 1, nil, nil
		}
		if i < 0 && len(data) >= n {
			dropped = len(data)
			return len(data), nil, nil
		}
		return bufio.ScanLines(data, atEOF)
	}
}

// Write sends data to the port as-is.
func (l *Link) Write(data []byte) error {
	l.mu.Lock()
	closed := l.closed || l.ctx.Err() != nil
	l.mu.Unlock()
	if closed {
		return device.ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.port.Write(data); err != nil {
		return fmt.Errorf("serial write failed: %w", err)
	}
	return nil
}

// Close closes the port and waits for the reader to stop.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel(nil)
	// Unblock a pump stuck on a full buffer before closing the port.
	l.buf.CloseWithError(io.ErrClosedPipe)
	err := l.port.Close()
	<-l.done

	if err != nil {
		l.logger.WithField("error", err).Warn("Serial port closed with errors")
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	l.logger.WithField("port", l.path).Info("Serial port closed")
	return nil
}
