// Package dashboard renders session snapshots: a plain line renderer for
// pipes, a Bubble Tea TUI for terminals and an HTML chart for browsers.
package dashboard

import (
	"strconv"
	"time"
)

// Placeholder is shown for values that have not been received yet.
const Placeholder = "--"

// TimeLayout formats log and chart timestamps.
const TimeLayout = "15:04:05"

// FormatFixed formats v with two decimals.
func FormatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatAltitude renders an altitude readout such as "123.45 m".
func FormatAltitude(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return FormatFixed(*v) + " m"
}

// FormatChange renders an elevation change readout such as "-2.00 cm".
func FormatChange(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return FormatFixed(*v) + " cm"
}

// FormatMotion renders the motion label verbatim.
func FormatMotion(v *string) string {
	if v == nil || *v == "" {
		return Placeholder
	}
	return *v
}

// FormatTime renders a wall-clock timestamp, or the placeholder for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.Format(TimeLayout)
}
