package robot

// Gyro yields the robot heading.
type Gyro interface {
	HeadingRadians() (float64, error)
}

// NoGyro is used when no gyro is wired. It always reports a zero heading.
type NoGyro struct{}

func (NoGyro) HeadingRadians() (float64, error) { return 0, nil }

// Battery reports the robot's input voltage.
type Battery interface {
	Voltage() (float64, error)
}

// FixedBattery reports a constant voltage, for rigs without a voltage sense.
type FixedBattery float64

func (b FixedBattery) Voltage() (float64, error) { return float64(b), nil }

// Joystick is a two-axis manual input, both axes in [-1, 1].
// Y is positive when the stick is pulled back.
type Joystick interface {
	X() float64
	Y() float64
}

// CenteredJoystick never deflects.
type CenteredJoystick struct{}

func (CenteredJoystick) X() float64 { return 0 }
func (CenteredJoystick) Y() float64 { return 0 }
