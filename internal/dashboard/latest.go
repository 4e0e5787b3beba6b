package dashboard

import (
	"sync/atomic"

	"github.com/srg/altimon/internal/session"
)

// Latest keeps the most recent snapshot for readers outside the session
// loop, such as HTTP handlers.
type Latest struct {
	snap atomic.Pointer[session.Snapshot]
}

// Render implements session.Display.
func (l *Latest) Render(s session.Snapshot) {
	l.snap.Store(&s)
}

// Load returns the most recent snapshot, if any has been rendered.
func (l *Latest) Load() (session.Snapshot, bool) {
	p := l.snap.Load()
	if p == nil {
		return session.Snapshot{}, false
	}
	return *p, true
}

// Fanout renders every snapshot on each display in order.
type Fanout []session.Display

// Render implements session.Display.
func (f Fanout) Render(s session.Snapshot) {
	for _, d := range f {
		if d != nil {
			d.Render(s)
		}
	}
}
