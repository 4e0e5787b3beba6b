package session

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/altimon/internal/device"
)

const (
	// DefaultQueueSize is the number of notifications buffered between the
	// transport callback and the session loop.
	DefaultQueueSize uint32 = 256

	// MaxQueueSize guards against accidental misconfiguration.
	MaxQueueSize uint32 = 64 * 1024
)

// QueueMetrics provides lock-free counters for the notification queue.
type QueueMetrics struct {
	Enqueued    int64
	Overwritten int64
	Errors      int64
}

// notificationQueue hands transport notifications to the session loop.
// Producers never block: when the ring is full the oldest notification is
// overwritten. wake carries at most one pending signal.
type notificationQueue struct {
	buffer  mpmc.RichOverlappedRingBuffer[device.Notification]
	wake    chan struct{}
	metrics QueueMetrics
}

func newNotificationQueue(size uint32) (*notificationQueue, error) {
	if size == 0 {
		size = DefaultQueueSize
	}
	if size > MaxQueueSize {
		return nil, fmt.Errorf("queue size %d exceeds maximum %d", size, MaxQueueSize)
	}
	return &notificationQueue{
		buffer: mpmc.NewOverlappedRingBuffer[device.Notification](size),
		wake:   make(chan struct{}, 1),
	}, nil
}

// push is called from transport goroutines.
func (q *notificationQueue) push(n device.Notification) {
	overwrites, err := q.buffer.EnqueueM(n)
	if err != nil {
		atomic.AddInt64(&q.metrics.Errors, 1)
		return
	}
	atomic.AddInt64(&q.metrics.Enqueued, 1)
	atomic.AddInt64(&q.metrics.Overwritten, int64(overwrites))

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain passes every buffered notification to fn, oldest first.
func (q *notificationQueue) drain(fn func(device.Notification)) error {
	for !q.buffer.IsEmpty() {
		n, err := q.buffer.Dequeue()
		if err != nil {
			atomic.AddInt64(&q.metrics.Errors, 1)
			return fmt.Errorf("queue dequeue error: %w", err)
		}
		fn(n)
	}
	return nil
}

func (q *notificationQueue) overwritten() int64 {
	return atomic.LoadInt64(&q.metrics.Overwritten)
}

func (q *notificationQueue) snapshot() QueueMetrics {
	return QueueMetrics{
		Enqueued:    atomic.LoadInt64(&q.metrics.Enqueued),
		Overwritten: atomic.LoadInt64(&q.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&q.metrics.Errors),
	}
}
