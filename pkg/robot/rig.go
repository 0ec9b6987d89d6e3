package robot

import (
	"errors"
	"fmt"
	"io"
)

// Side is one driven mechanism: a motor group and the encoder measuring it.
type Side struct {
	Name    string
	Motors  *MotorGroup
	Encoder *Encoder
}

// Rig is the full set of hardware the characterization loop owns.
type Rig struct {
	Variant Variant
	// Sides holds one side for arms, left then right for drivetrains.
	Sides []*Side
	// Heading appends the gyro angle to drivetrain telemetry.
	Heading  bool
	Gyro     Gyro
	Battery  Battery
	Joystick Joystick

	closers []io.Closer
}

// NewRig creates an empty rig with null sensors.
func NewRig(variant Variant) *Rig {
	return &Rig{
		Variant:  variant,
		Gyro:     NoGyro{},
		Joystick: CenteredJoystick{},
	}
}

// AddCloser registers a resource released by Close.
func (r *Rig) AddCloser(c io.Closer) {
	r.closers = append(r.closers, c)
}

// Check verifies the rig has the sides its variant needs.
func (r *Rig) Check() error {
	want := 1
	if r.Variant == VariantDrive {
		want = 2
	}
	if len(r.Sides) != want {
		return fmt.Errorf("%s rig needs %d sides, has %d", r.Variant, want, len(r.Sides))
	}
	for _, s := range r.Sides {
		if s.Motors == nil || s.Encoder == nil {
			return fmt.Errorf("side %q is missing motors or encoder", s.Name)
		}
	}
	if r.Battery == nil {
		return errors.New("rig has no battery sense")
	}
	return nil
}

// Close releases every registered resource, in reverse order.
func (r *Rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
