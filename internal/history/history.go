// Package history keeps the bounded window of recent altitude readings
// that drives the chart.
package history

import "time"

// DefaultCapacity is the number of readings kept when no capacity is given.
const DefaultCapacity = 50

// Point is one time-stamped altitude reading.
type Point struct {
	At       time.Time `json:"at"`
	Altitude float64   `json:"altitude"`
}

// History is a FIFO of the most recent readings. Once full, every Append
// evicts the oldest point. It is not safe for concurrent use.
type History struct {
	capacity int
	points   []Point
}

// New creates a history holding at most capacity points.
// A capacity <= 0 selects DefaultCapacity.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity: capacity,
		points:   make([]Point, 0, capacity),
	}
}

// Append adds p as the newest point and reports whether the oldest point
// was evicted to make room.
func (h *History) Append(p Point) bool {
	if len(h.points) < h.capacity {
		h.points = append(h.points, p)
		return false
	}
	copy(h.points, h.points[1:])
	h.points[len(h.points)-1] = p
	return true
}

// Points returns a copy of the readings, oldest first.
func (h *History) Points() []Point {
	out := make([]Point, len(h.points))
	copy(out, h.points)
	return out
}

// Len returns the number of stored points.
func (h *History) Len() int {
	return len(h.points)
}

// Cap returns the maximum number of stored points.
func (h *History) Cap() int {
	return h.capacity
}

// Latest returns the newest point.
func (h *History) Latest() (Point, bool) {
	if len(h.points) == 0 {
		return Point{}, false
	}
	return h.points[len(h.points)-1], true
}

// Range returns the lowest and highest stored altitude.
func (h *History) Range() (lo, hi float64, ok bool) {
	return Range(h.points)
}

// Clear drops every point, keeping the capacity.
func (h *History) Clear() {
	h.points = h.points[:0]
}

// Range returns the lowest and highest altitude in points.
func Range(points []Point) (lo, hi float64, ok bool) {
	if len(points) == 0 {
		return 0, 0, false
	}
	lo, hi = points[0].Altitude, points[0].Altitude
	for _, p := range points[1:] {
		if p.Altitude < lo {
			lo = p.Altitude
		}
		if p.Altitude > hi {
			hi = p.Altitude
		}
	}
	return lo, hi, true
}
