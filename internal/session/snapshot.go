package session

import (
	"time"

	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/history"
	"github.com/srg/altimon/internal/telemetry"
)

// Counters summarise what the session has seen.
type Counters struct {
	Frames  int64 `json:"frames"`
	Decoded int64 `json:"decoded"`
	Ignored int64 `json:"ignored"`
	Dropped int64 `json:"dropped"`
}

// Readout holds the last displayed value of each field. A nil field has
// never been received.
type Readout struct {
	Altitude *float64 `json:"altitude,omitempty"`
	Change   *float64 `json:"change,omitempty"`
	Motion   *string  `json:"motion,omitempty"`
}

// Snapshot is an immutable view of the session handed to displays.
// Slices are copies and may be retained.
type Snapshot struct {
	SessionID   string               `json:"session_id"`
	Address     string               `json:"address"`
	Connected   bool                 `json:"connected"`
	ConnectedAt time.Time            `json:"connected_at"`
	At          time.Time            `json:"at"`
	LastFrame   string               `json:"last_frame,omitempty"`
	LastResult  telemetry.Result     `json:"-"`
	Readout     Readout              `json:"readout"`
	Indicators  telemetry.Indicators `json:"indicators"`
	History     []history.Point      `json:"history"`
	Log         []activitylog.Entry  `json:"log"`
	Counters    Counters             `json:"counters"`
}

// Display receives a snapshot after every state change. Render is called
// from the session loop and must not block for long.
type Display interface {
	Render(Snapshot)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(Snapshot)

// Render calls f(s).
func (f DisplayFunc) Render(s Snapshot) {
	f(s)
}

type nopDisplay struct{}

func (nopDisplay) Render(Snapshot) {}
