package telemetry

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Frame prefixes of the terse protocol.
const (
	PrefixAltitude = "A:"
	PrefixChange   = "C:"
	PrefixMotion   = "M:"
)

// Outcome tells whether a frame produced a sample.
type Outcome int

const (
	// OutcomeIgnored means the frame was not recognized or carried an
	// unparseable number. It is not an error.
	OutcomeIgnored Outcome = iota
	OutcomeDecoded
)

func (o Outcome) String() string {
	if o == OutcomeDecoded {
		return "decoded"
	}
	return "ignored"
}

// Ignore reasons reported in Result.Reason.
const (
	ReasonBadAltitude  = "unparseable altitude"
	ReasonBadChange    = "unparseable change"
	ReasonBadVerbose   = "unparseable verbose field"
	ReasonUnrecognized = "unrecognized frame"
)

// Result is the outcome of decoding a single frame.
type Result struct {
	Outcome Outcome
	Variant Variant
	Sample  Sample
	Reason  string // set when Outcome is OutcomeIgnored
}

// Ok reports whether the frame produced a sample.
func (r Result) Ok() bool {
	return r.Outcome == OutcomeDecoded
}

// Equal compares results by value.
func (r Result) Equal(o Result) bool {
	return r.Outcome == o.Outcome && r.Variant == o.Variant && r.Reason == o.Reason && r.Sample.Equal(o.Sample)
}

func decoded(v Variant, s Sample) Result {
	return Result{Outcome: OutcomeDecoded, Variant: v, Sample: s}
}

func ignored(v Variant, reason string) Result {
	return Result{Outcome: OutcomeIgnored, Variant: v, Reason: reason}
}

// verbosePattern matches the sentence format emitted by older firmware.
// The match is unanchored: surrounding text is tolerated.
var verbosePattern = regexp.MustCompile(`Altitude: (-?[0-9.]+) m, Change: (-?[0-9.]+) cm, IMU Motion: ([A-Z]+)`)

// Decode turns one frame into a Result. It has no side effects; decoding the
// same frame twice yields equal results.
func Decode(frame string) Result {
	switch {
	case strings.HasPrefix(frame, PrefixAltitude):
		v, ok := ParseFloat(frame[len(PrefixAltitude):])
		if !ok {
			return ignored(VariantPrefixed, ReasonBadAltitude)
		}
		return decoded(VariantPrefixed, AltitudeSample(v))

	case strings.HasPrefix(frame, PrefixChange):
		v, ok := ParseFloat(frame[len(PrefixChange):])
		if !ok {
			return ignored(VariantPrefixed, ReasonBadChange)
		}
		return decoded(VariantPrefixed, ChangeSample(v))

	case strings.HasPrefix(frame, PrefixMotion):
		// Label is taken verbatim, no trimming or validation.
		return decoded(VariantPrefixed, MotionSample(frame[len(PrefixMotion):]))
	}

	m := verbosePattern.FindStringSubmatch(frame)
	if m == nil {
		return ignored(VariantNone, ReasonUnrecognized)
	}

	alt, ok := ParseFloat(m[1])
	if !ok {
		return ignored(VariantVerbose, ReasonBadVerbose)
	}
	change, ok := ParseFloat(m[2])
	if !ok {
		return ignored(VariantVerbose, ReasonBadVerbose)
	}
	return decoded(VariantVerbose, CombinedSample(alt, change, m[3]))
}

// leadingFloat matches the longest decimal number at the start of a string.
var leadingFloat = regexp.MustCompile(`^[+-]?(?:Infinity|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)`)

// ParseFloat reads a decimal number from the start of s, skipping leading
// whitespace and ignoring anything after the number, so "12.5\r\n" is 12.5.
// It reports false when no number is present or the value is NaN.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	lit := leadingFloat.FindString(s)
	if lit == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(lit, 64)
	// Out-of-range literals still carry a signed infinity.
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
