package robot

import (
	"math"
)

// EncoderCalibration converts raw encoder counts into mechanism units.
//
// When WheelDiameter is set the unit is distance travelled by the wheel or
// pulley: drivetrains, and elevators with the pulley diameter. Otherwise the
// unit is degrees of the output shaft for arms, or shaft rotations when
// Rotations is set, as for simple flywheel-style motors. Elevators and simple
// motors are characterized as one-sided rigs with the arm telemetry layout.
type EncoderCalibration struct {
	PulsesPerRev  float64 `json:"pulses_per_rev" yaml:"pulses_per_rev"`
	Gearing       float64 `json:"gearing,omitempty" yaml:"gearing,omitempty"`
	WheelDiameter float64 `json:"wheel_diameter,omitempty" yaml:"wheel_diameter,omitempty"`
	// Rotations reports output shaft turns instead of degrees.
	Rotations bool `json:"rotations,omitempty" yaml:"rotations,omitempty"`
	// Offset of encoder zero, in output units. For arms this is the angle
	// from horizontal at power-on.
	Offset float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
	// Inverted flips the sensor phase.
	Inverted bool `json:"inverted,omitempty" yaml:"inverted,omitempty"`
	// VelocityScale converts the source's velocity period to seconds:
	// 10 for counts per 100ms, 1 for counts per second.
	VelocityScale float64 `json:"velocity_scale,omitempty" yaml:"velocity_scale,omitempty"`
}

// Constant returns the distance per pulse.
func (c EncoderCalibration) Constant() float64 {
	if c.PulsesPerRev == 0 {
		return 0
	}
	if c.WheelDiameter > 0 {
		return (1 / c.PulsesPerRev) * c.WheelDiameter * math.Pi
	}
	gearing := c.Gearing
	if gearing == 0 {
		gearing = 1
	}
	if c.Rotations {
		return (1 / c.PulsesPerRev) / gearing
	}
	return (1 / c.PulsesPerRev) / gearing * 360
}

func (c EncoderCalibration) phase() float64 {
	if c.Inverted {
		return -1
	}
	return 1
}

// Position converts a raw count to output units.
func (c EncoderCalibration) Position(raw float64) float64 {
	return c.phase()*raw*c.Constant() + c.Offset
}

// Count converts a position back to the raw count producing it.
func (c EncoderCalibration) Count(position float64) float64 {
	k := c.Constant()
	if k == 0 {
		return 0
	}
	return c.phase() * (position - c.Offset) / k
}

// Rate converts a raw velocity to output units per second.
func (c EncoderCalibration) Rate(raw float64) float64 {
	scale := c.VelocityScale
	if scale == 0 {
		scale = 1
	}
	return c.phase() * raw * c.Constant() * scale
}

// CountSource is a raw position/velocity source such as a quadrature encoder.
type CountSource interface {
	Count() (float64, error)
	Velocity() (float64, error)
	Reset() error
}

// Encoder is a calibrated position/velocity sensor.
type Encoder struct {
	src CountSource
	cal EncoderCalibration
}

// NewEncoder binds a raw source to its calibration.
func NewEncoder(src CountSource, cal EncoderCalibration) *Encoder {
	return &Encoder{src: src, cal: cal}
}

// Position returns the current position in output units.
func (e *Encoder) Position() (float64, error) {
	raw, err := e.src.Count()
	if err != nil {
		return 0, err
	}
	return e.cal.Position(raw), nil
}

// Rate returns the current velocity in output units per second.
func (e *Encoder) Rate() (float64, error) {
	raw, err := e.src.Velocity()
	if err != nil {
		return 0, err
	}
	return e.cal.Rate(raw), nil
}

// Reset zeroes the raw count.
func (e *Encoder) Reset() error {
	return e.src.Reset()
}

// Calibration returns the conversion in use.
func (e *Encoder) Calibration() EncoderCalibration {
	return e.cal
}
