package telemetry

// Update is what Decoder.Apply reports for one frame.
type Update struct {
	Result     Result
	Indicators Indicators
	// Changed is true when the frame moved the indicator lights.
	Changed bool
}

// Decoder wraps Decode with the minimal carry-over needed when change and
// motion arrive in separate frames. It is not safe for concurrent use; a
// session owns exactly one.
type Decoder struct {
	change     float64
	motion     string
	hasChange  bool
	hasMotion  bool
	indicators Indicators
}

// NewDecoder returns a decoder with no carried values and all lights off.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Apply decodes frame and folds the sample into the carried state.
// Altitude samples and ignored frames leave indicators untouched.
func (d *Decoder) Apply(frame string) Update {
	res := Decode(frame)
	if !res.Ok() {
		return Update{Result: res, Indicators: d.indicators}
	}

	touched := false
	if v, ok := res.Sample.ChangeCm(); ok {
		d.change, d.hasChange = v, true
		touched = true
	}
	if v, ok := res.Sample.MotionLabel(); ok {
		d.motion, d.hasMotion = v, true
		touched = true
	}
	if !touched {
		return Update{Result: res, Indicators: d.indicators}
	}

	prev := d.indicators
	d.indicators = res.Variant.Derive(d.change, d.motion)
	return Update{
		Result:     res,
		Indicators: d.indicators,
		Changed:    prev != d.indicators,
	}
}

// Indicators returns the current light state.
func (d *Decoder) Indicators() Indicators {
	return d.indicators
}

// LastChange returns the most recent change value, if any.
func (d *Decoder) LastChange() (float64, bool) {
	return d.change, d.hasChange
}

// LastMotion returns the most recent motion label, if any.
func (d *Decoder) LastMotion() (string, bool) {
	return d.motion, d.hasMotion
}

// Reset drops carried values and switches every light off.
// Call it when the link goes down.
func (d *Decoder) Reset() {
	*d = Decoder{}
}
