package robot

import (
	"errors"
	"math"
	"testing"
)

func TestEncoderCalibration_Constant(t *testing.T) {
	tests := []struct {
		name     string
		cal      EncoderCalibration
		expected float64
	}{
		{"arm degrees", EncoderCalibration{PulsesPerRev: 360, Gearing: 1}, 1},
		{"arm default gearing", EncoderCalibration{PulsesPerRev: 360}, 1},
		{"arm geared", EncoderCalibration{PulsesPerRev: 4096, Gearing: 4}, 360.0 / 4096 / 4},
		{"drive wheel", EncoderCalibration{PulsesPerRev: 360, WheelDiameter: 0.5}, 0.5 * math.Pi / 360},
		{"elevator pulley", EncoderCalibration{PulsesPerRev: 2048, Gearing: 10, WheelDiameter: 1.5}, 1.5 * math.Pi / 2048},
		{"simple motor rotations", EncoderCalibration{PulsesPerRev: 2048, Gearing: 2, Rotations: true}, 1.0 / 2048 / 2},
		{"no pulses", EncoderCalibration{}, 0},
	}

	for _, tt := range tests {
		got := tt.cal.Constant()
		if math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("%s: Constant() = %g, want %g", tt.name, got, tt.expected)
		}
	}
}

func TestEncoderCalibration_Position(t *testing.T) {
	cal := EncoderCalibration{PulsesPerRev: 360, Gearing: 2, Offset: -30}

	tests := []struct {
		raw      float64
		expected float64
	}{
		{0, -30},     // zero -> offset
		{720, 330},   // two encoder revs -> one arm rev
		{180, 60},    // quarter
		{-360, -210}, // backwards half
	}

	for _, tt := range tests {
		got := cal.Position(tt.raw)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Position(%g) = %g, want %g", tt.raw, got, tt.expected)
		}
	}
}

func TestEncoderCalibration_OneWheelRevolution(t *testing.T) {
	cal := EncoderCalibration{PulsesPerRev: 360, WheelDiameter: 0.5}
	got := cal.Position(360)
	if math.Abs(got-1.5708) > 1e-4 {
		t.Errorf("Position(360) = %f, want ~1.5708", got)
	}
}

func TestEncoderCalibration_RoundTrip(t *testing.T) {
	cals := []EncoderCalibration{
		{PulsesPerRev: 512, Gearing: 3, Offset: 12.5},
		{PulsesPerRev: 360, WheelDiameter: 0.333, Inverted: true},
	}

	for _, cal := range cals {
		for raw := -2000.0; raw <= 2000; raw += 97 {
			pos := cal.Position(raw)
			back := cal.Count(pos)
			if math.Abs(back-raw) > 1e-6 {
				t.Errorf("Round-trip failed: %g -> %g -> %g", raw, pos, back)
			}
		}
	}
}

func TestEncoderCalibration_Rate(t *testing.T) {
	// Talon velocities are reported per 100ms.
	talon := EncoderCalibration{PulsesPerRev: 360, Gearing: 1, VelocityScale: 10}
	if got := talon.Rate(36); math.Abs(got-360) > 1e-9 {
		t.Errorf("Rate(36) = %g, want 360", got)
	}

	inverted := EncoderCalibration{PulsesPerRev: 360, Inverted: true}
	if got := inverted.Rate(90); math.Abs(got+90) > 1e-9 {
		t.Errorf("inverted Rate(90) = %g, want -90", got)
	}
}

type fakeSource struct {
	count, velocity float64
	err             error
	resets          int
}

func (f *fakeSource) Count() (float64, error)    { return f.count, f.err }
func (f *fakeSource) Velocity() (float64, error) { return f.velocity, f.err }
func (f *fakeSource) Reset() error {
	f.resets++
	f.count = 0
	return f.err
}

func TestEncoder(t *testing.T) {
	src := &fakeSource{count: 360, velocity: 720}
	enc := NewEncoder(src, EncoderCalibration{PulsesPerRev: 360, WheelDiameter: 0.5})

	pos, err := enc.Position()
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if math.Abs(pos-math.Pi*0.5) > 1e-9 {
		t.Errorf("Position = %f, want %f", pos, math.Pi*0.5)
	}

	rate, err := enc.Rate()
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if math.Abs(rate-math.Pi) > 1e-9 {
		t.Errorf("Rate = %f, want %f", rate, math.Pi)
	}

	if err := enc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if src.resets != 1 {
		t.Errorf("Reset called source %d times, want 1", src.resets)
	}

	src.err = errors.New("bus timeout")
	if _, err := enc.Position(); err == nil {
		t.Error("Position should propagate source errors")
	}
}
