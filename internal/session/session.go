// Package session owns the live state of one device connection: the decoder
// carry-over, the altitude history and the activity log. All state is
// mutated by a single loop goroutine; transports only enqueue and displays
// only receive snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/device"
	"github.com/srg/altimon/internal/history"
	"github.com/srg/altimon/internal/telemetry"
)

// Activity log messages.
const (
	MsgData         = "Data: %s"
	MsgCommandSent  = "Command sent: %s"
	MsgNotConnected = "Not connected to device"
	MsgDisconnected = "Device disconnected."
	MsgSendError    = "Send error: %v"
	MsgConnected    = "Connected successfully!"
)

// ErrConnectionLost is returned by Run when the link drops while the
// session is running.
var ErrConnectionLost = errors.New("connection lost")

// Options configures a Session.
type Options struct {
	// HistorySize bounds the altitude history (0 selects history.DefaultCapacity).
	HistorySize int
	// QueueSize bounds the notification queue (0 selects DefaultQueueSize).
	QueueSize uint32
	// Log receives activity entries. A nil Log gets a fresh one.
	Log *activitylog.Log
	// Display is rendered after every state change. Nil renders nothing.
	Display Display
	Logger  *logrus.Logger
	// Now supplies timestamps for the connected-since field and snapshots.
	Now func() time.Time
}

type requestKind int

const (
	requestSend requestKind = iota
	requestClearLog
)

type request struct {
	kind  requestKind
	text  string
	reply chan error
}

// Session binds one Link to decoder, history and log state.
type Session struct {
	id      string
	link    device.Link
	display Display
	logger  *logrus.Logger
	now     func() time.Time

	decoder *telemetry.Decoder
	history *history.History
	log     *activitylog.Log
	queue   *notificationQueue

	requests chan request
	done     chan struct{}
	started  atomic.Bool
	// stateMu serialises request handling after the loop has exited.
	stateMu sync.Mutex

	connected   bool
	connectedAt time.Time
	readout     Readout
	lastFrame   string
	lastResult  telemetry.Result
	counters    Counters
}

// New creates a session for link. Run must be called to start it.
func New(link device.Link, opts Options) (*Session, error) {
	if link == nil {
		return nil, fmt.Errorf("link cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	log := opts.Log
	if log == nil {
		log = activitylog.New(activitylog.DefaultLimit, logger)
	}
	display := opts.Display
	if display == nil {
		display = nopDisplay{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	queue, err := newNotificationQueue(opts.QueueSize)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:       uuid.NewString(),
		link:     link,
		display:  display,
		logger:   logger,
		now:      now,
		decoder:  telemetry.NewDecoder(),
		history:  history.New(opts.HistorySize),
		log:      log,
		queue:    queue,
		requests: make(chan request),
		done:     make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Run subscribes to the link and processes notifications and requests
// until ctx is cancelled (returns nil) or the link drops (returns
// ErrConnectionLost). Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session %s is already running", s.id)
	}
	defer close(s.done)

	logger := s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"address": s.link.Address(),
	})

	if err := s.link.Subscribe(s.queue.push); err != nil {
		s.log.Errorf("Connection error: %v", err)
		s.render()
		return fmt.Errorf("failed to subscribe to %s: %w", s.link.Address(), err)
	}

	s.connected = true
	s.connectedAt = s.now()
	s.log.Add(MsgConnected)
	s.render()
	logger.Info("Session started")

	linkCtx := s.link.ConnectionContext()
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.disconnect()
			logger.Info("Session stopped")
			return nil

		case <-linkCtx.Done():
			s.drain()
			s.disconnect()
			if ctx.Err() != nil {
				logger.Info("Session stopped")
				return nil
			}
			logger.WithField("cause", context.Cause(linkCtx)).Warn("Link lost")
			return ErrConnectionLost

		case <-s.queue.wake:
			s.drain()

		case req := <-s.requests:
			req.reply <- s.handle(req)
		}
	}
}

// SendCommand writes text to the device. When the session is not
// connected it records "Not connected to device" and returns
// device.ErrNotConnected.
func (s *Session) SendCommand(ctx context.Context, text string) error {
	return s.post(ctx, request{kind: requestSend, text: text})
}

// ClearLog empties the activity log.
func (s *Session) ClearLog(ctx context.Context) error {
	return s.post(ctx, request{kind: requestClearLog})
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// QueueMetrics returns the notification queue counters.
func (s *Session) QueueMetrics() QueueMetrics {
	return s.queue.snapshot()
}

func (s *Session) post(ctx context.Context, req request) error {
	req.reply = make(chan error, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		return s.handle(req)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handle(req request) error {
	defer s.render()

	switch req.kind {
	case requestClearLog:
		s.log.Clear()
		return nil

	case requestSend:
		if !s.connected {
			s.log.AddError(MsgNotConnected)
			return device.ErrNotConnected
		}
		if err := s.link.Write([]byte(req.text)); err != nil {
			if errors.Is(err, device.ErrNotConnected) {
				s.log.AddError(MsgNotConnected)
			} else {
				s.log.Errorf(MsgSendError, err)
			}
			return err
		}
		s.log.Addf(MsgCommandSent, req.text)
		return nil
	}
	return fmt.Errorf("unknown request kind %d", req.kind)
}

func (s *Session) drain() {
	err := s.queue.drain(func(n device.Notification) {
		s.counters.Dropped = s.queue.overwritten()
		s.process(n)
		s.render()
	})
	if err != nil {
		s.logger.WithField("error", err).Error("Failed to drain notification queue")
	}
}

// process applies one frame. The caller renders.
func (s *Session) process(n device.Notification) {
	frame := string(n.Data)
	s.counters.Frames++
	s.lastFrame = frame
	s.log.Addf(MsgData, frame)

	upd := s.decoder.Apply(frame)
	s.lastResult = upd.Result
	if !upd.Result.Ok() {
		s.counters.Ignored++
		s.logger.WithFields(logrus.Fields{
			"frame":  frame,
			"reason": upd.Result.Reason,
		}).Debug("Frame ignored")
		return
	}
	s.counters.Decoded++

	sample := upd.Result.Sample
	if v, ok := sample.AltitudeMeters(); ok {
		s.readout.Altitude = &v
		at := n.At
		if at.IsZero() {
			at = s.now()
		}
		s.history.Append(history.Point{At: at, Altitude: v})
	}
	if v, ok := sample.ChangeCm(); ok {
		s.readout.Change = &v
	}
	if v, ok := sample.MotionLabel(); ok {
		s.readout.Motion = &v
	}
}

func (s *Session) disconnect() {
	s.connected = false
	s.decoder.Reset()
	s.log.AddError(MsgDisconnected)
	s.render()
}

// snapshot must only be called from the session loop or after Run has returned.
func (s *Session) snapshot() Snapshot {
	return Snapshot{
		SessionID:   s.id,
		Address:     s.link.Address(),
		Connected:   s.connected,
		ConnectedAt: s.connectedAt,
		At:          s.now(),
		LastFrame:   s.lastFrame,
		LastResult:  s.lastResult,
		Readout:     s.readout,
		Indicators:  s.decoder.Indicators(),
		History:     s.history.Points(),
		Log:         s.log.Entries(),
		Counters:    s.counters,
	}
}

func (s *Session) render() {
	s.display.Render(s.snapshot())
}
