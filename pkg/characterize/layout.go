// Package characterize implements the characterization robot loop and the
// fixed-rate driver that runs it.
package characterize

import "github.com/wpilibsuite/frc-characterization/pkg/robot"

// Layout is the shape of the telemetry record.
type Layout int

const (
	// LayoutArm: t, battery, autospeed, volts, position, rate.
	LayoutArm Layout = iota
	// LayoutDrive: t, battery, autospeed, l/r volts, l/r position, l/r rate.
	LayoutDrive
	// LayoutDriveHeading is LayoutDrive followed by the heading in radians.
	LayoutDriveHeading
)

// Columns shared by every layout.
const (
	ColTimestamp = 0
	ColBattery   = 1
	ColAutoSpeed = 2
)

// LayoutFor picks the layout matching a rig.
func LayoutFor(rig *robot.Rig) Layout {
	if rig.Variant != robot.VariantDrive {
		return LayoutArm
	}
	if rig.Heading {
		return LayoutDriveHeading
	}
	return LayoutDrive
}

// Len is the number of fields in a record.
func (l Layout) Len() int {
	switch l {
	case LayoutDrive:
		return 9
	case LayoutDriveHeading:
		return 10
	default:
		return 6
	}
}

// Columns names every field in order.
func (l Layout) Columns() []string {
	switch l {
	case LayoutArm:
		return []string{"timestamp", "battery", "autospeed", "motor_volts", "position", "rate"}
	default:
		cols := []string{
			"timestamp", "battery", "autospeed",
			"l_motor_volts", "r_motor_volts",
			"l_position", "r_position",
			"l_rate", "r_rate",
		}
		if l == LayoutDriveHeading {
			cols = append(cols, "heading")
		}
		return cols
	}
}

// PositionColumns returns the index of every position field.
func (l Layout) PositionColumns() []int {
	if l == LayoutArm {
		return []int{4}
	}
	return []int{5, 6}
}

// RateColumns returns the index of every rate field.
func (l Layout) RateColumns() []int {
	if l == LayoutArm {
		return []int{5}
	}
	return []int{7, 8}
}

func (l Layout) String() string {
	switch l {
	case LayoutArm:
		return "arm"
	case LayoutDrive:
		return "drive"
	case LayoutDriveHeading:
		return "drive+heading"
	}
	return "unknown"
}
