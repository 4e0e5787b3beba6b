package telemetry

import (
	"fmt"
	"math"
)

// DriftMotion is the motion label that lights the drift indicator for prefixed frames.
const DriftMotion = "DRIFT"

// UpMotion is the motion label required for the rising indicator on verbose frames.
const UpMotion = "UP"

// DriftThresholdCm is the change magnitude below which verbose frames count as drifting.
const DriftThresholdCm = 0.5

// Variant names the frame format a result was decoded from.
// Each variant has its own indicator rule; the rules disagree on what
// "drift" means and must not be merged.
type Variant int

const (
	VariantNone Variant = iota
	VariantPrefixed
	VariantVerbose
)

func (v Variant) String() string {
	switch v {
	case VariantNone:
		return "none"
	case VariantPrefixed:
		return "prefixed"
	case VariantVerbose:
		return "verbose"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Derive applies the indicator rule of the variant.
// VariantNone yields all indicators off.
func (v Variant) Derive(changeCm float64, motion string) Indicators {
	switch v {
	case VariantPrefixed:
		return DerivePrefixed(changeCm, motion)
	case VariantVerbose:
		return DeriveVerbose(changeCm, motion)
	default:
		return Indicators{}
	}
}

// Indicators is the derived state of the three dashboard lights.
type Indicators struct {
	Rising  bool `json:"rising"`
	Falling bool `json:"falling"`
	Drift   bool `json:"drift"`
}

// DerivePrefixed computes indicators for values received as separate
// "C:" and "M:" frames. Rising and falling are mutually exclusive and both
// off at zero; drift depends only on the motion label.
func DerivePrefixed(changeCm float64, motion string) Indicators {
	return Indicators{
		Rising:  changeCm > 0,
		Falling: changeCm < 0,
		Drift:   motion == DriftMotion,
	}
}

// DeriveVerbose computes indicators for a combined sentence frame.
// Rising requires an "UP" label, falling does not look at the label, and
// drift is a magnitude threshold on the change.
func DeriveVerbose(changeCm float64, motion string) Indicators {
	return Indicators{
		Rising:  motion == UpMotion && changeCm > 0,
		Falling: changeCm < 0,
		Drift:   math.Abs(changeCm) < DriftThresholdCm,
	}
}
