package dashboard

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/session"
	"github.com/srg/altimon/internal/telemetry"
)

const ledGlyph = "●"

// Plain writes new activity log entries as timestamped lines and, after every
// decoded frame, a readout line with the indicator lights.
type Plain struct {
	w       io.Writer
	noColor bool

	red, green, blue, off, errc *color.Color

	mu        sync.Mutex
	lastEntry *activitylog.Entry
	decoded   int64
	connected bool
}

// NewPlain creates a plain renderer writing to w. With noColor the lights
// are printed as letters (R, G, B) and '-' when off.
func NewPlain(w io.Writer, noColor bool) *Plain {
	p := &Plain{
		w:       w,
		noColor: noColor,
		red:     color.New(color.FgRed, color.Bold),
		green:   color.New(color.FgGreen, color.Bold),
		blue:    color.New(color.FgBlue, color.Bold),
		off:     color.New(color.Faint),
		errc:    color.New(color.FgRed),
	}
	if noColor {
		for _, c := range []*color.Color{p.red, p.green, p.blue, p.off, p.errc} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{p.red, p.green, p.blue, p.off, p.errc} {
			c.EnableColor()
		}
	}
	return p
}

// Render implements session.Display.
func (p *Plain) Render(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.newEntries(s.Log) {
		line := FormatTime(e.At) + " " + e.Message
		if e.IsError {
			line = p.errc.Sprint(line)
		}
		_, _ = fmt.Fprintln(p.w, line)
	}
	if n := len(s.Log); n > 0 {
		last := s.Log[n-1]
		p.lastEntry = &last
	} else {
		p.lastEntry = nil
	}

	if s.Counters.Decoded != p.decoded {
		p.decoded = s.Counters.Decoded
		_, _ = fmt.Fprintln(p.w, p.readoutLine(s))
	} else if p.connected && !s.Connected {
		_, _ = fmt.Fprintln(p.w, p.readoutLine(s))
	}
	p.connected = s.Connected
}

// newEntries returns the entries appended since the previous render.
func (p *Plain) newEntries(entries []activitylog.Entry) []activitylog.Entry {
	if p.lastEntry == nil {
		return entries
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] == *p.lastEntry {
			return entries[i+1:]
		}
	}
	// The log was cleared or rotated past the last printed entry.
	return entries
}

func (p *Plain) readoutLine(s session.Snapshot) string {
	var b strings.Builder
	b.WriteString("  altitude ")
	b.WriteString(FormatAltitude(s.Readout.Altitude))
	b.WriteString(" | change ")
	b.WriteString(FormatChange(s.Readout.Change))
	b.WriteString(" | motion ")
	b.WriteString(FormatMotion(s.Readout.Motion))
	b.WriteString(" | ")
	b.WriteString(p.leds(s.Indicators))
	return b.String()
}

func (p *Plain) leds(ind telemetry.Indicators) string {
	light := func(on bool, c *color.Color, letter string) string {
		if p.noColor {
			if on {
				return letter
			}
			return "-"
		}
		if on {
			return c.Sprint(ledGlyph)
		}
		return p.off.Sprint(ledGlyph)
	}
	return light(ind.Rising, p.red, "R") + " " +
		light(ind.Falling, p.green, "G") + " " +
		light(ind.Drift, p.blue, "B")
}
