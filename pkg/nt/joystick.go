package nt

// Joystick reads manual input published as [x, y] under JoystickKey.
type Joystick struct {
	Table Table
}

func (j Joystick) axis(i int) float64 {
	axes := j.Table.NumberArray(JoystickKey)
	if i >= len(axes) {
		return 0
	}
	return axes[i]
}

func (j Joystick) X() float64 { return j.axis(0) }
func (j Joystick) Y() float64 { return j.axis(1) }
