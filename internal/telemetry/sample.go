package telemetry

import "fmt"

// Kind identifies which fields a Sample carries.
type Kind int

const (
	KindAltitude Kind = iota + 1
	KindChange
	KindMotion
	KindCombined
)

func (k Kind) String() string {
	switch k {
	case KindAltitude:
		return "altitude"
	case KindChange:
		return "change"
	case KindMotion:
		return "motion"
	case KindCombined:
		return "combined"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sample is one normalized telemetry reading.
// Partial samples (prefixed frames) carry exactly one field; combined
// samples (verbose frames) carry all three.
type Sample struct {
	Kind     Kind
	Altitude *float64 // meters
	Change   *float64 // centimeters
	Motion   *string
}

// AltitudeSample creates a partial sample holding only an altitude in meters.
func AltitudeSample(meters float64) Sample {
	return Sample{Kind: KindAltitude, Altitude: &meters}
}

// ChangeSample creates a partial sample holding only an elevation change in centimeters.
func ChangeSample(cm float64) Sample {
	return Sample{Kind: KindChange, Change: &cm}
}

// MotionSample creates a partial sample holding only a motion label.
func MotionSample(label string) Sample {
	return Sample{Kind: KindMotion, Motion: &label}
}

// CombinedSample creates a sample with all three fields populated.
func CombinedSample(meters, cm float64, label string) Sample {
	return Sample{Kind: KindCombined, Altitude: &meters, Change: &cm, Motion: &label}
}

// AltitudeMeters returns the altitude and whether the sample carries one.
func (s Sample) AltitudeMeters() (float64, bool) {
	if s.Altitude == nil {
		return 0, false
	}
	return *s.Altitude, true
}

// ChangeCm returns the elevation change and whether the sample carries one.
func (s Sample) ChangeCm() (float64, bool) {
	if s.Change == nil {
		return 0, false
	}
	return *s.Change, true
}

// MotionLabel returns the motion label and whether the sample carries one.
func (s Sample) MotionLabel() (string, bool) {
	if s.Motion == nil {
		return "", false
	}
	return *s.Motion, true
}

// Fields returns the number of populated fields.
func (s Sample) Fields() int {
	n := 0
	if s.Altitude != nil {
		n++
	}
	if s.Change != nil {
		n++
	}
	if s.Motion != nil {
		n++
	}
	return n
}

// Equal compares samples by value rather than by pointer identity.
func (s Sample) Equal(o Sample) bool {
	return s.Kind == o.Kind &&
		eqPtr(s.Altitude, o.Altitude) &&
		eqPtr(s.Change, o.Change) &&
		eqPtr(s.Motion, o.Motion)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
