package robot

import "math"

// ArcadeDrive mixes a forward speed and a rotation rate into left and right
// commands, the way a differential drive does for a single stick.
func ArcadeDrive(xSpeed, zRotation float64, squareInputs bool) (left, right float64) {
	xSpeed = Limit(xSpeed)
	zRotation = Limit(zRotation)

	// Squaring keeps the sign and gives finer control at low speeds.
	if squareInputs {
		xSpeed = math.Copysign(xSpeed*xSpeed, xSpeed)
		zRotation = math.Copysign(zRotation*zRotation, zRotation)
	}

	maxInput := math.Copysign(math.Max(math.Abs(xSpeed), math.Abs(zRotation)), xSpeed)

	if xSpeed >= 0 {
		if zRotation >= 0 {
			left = maxInput
			right = xSpeed - zRotation
		} else {
			left = xSpeed + zRotation
			right = maxInput
		}
	} else {
		if zRotation >= 0 {
			left = xSpeed + zRotation
			right = maxInput
		} else {
			left = maxInput
			right = xSpeed - zRotation
		}
	}

	return Limit(left), Limit(right)
}
