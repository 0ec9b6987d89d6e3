package characterize

import (
	"fmt"
	"time"

	"github.com/wpilibsuite/frc-characterization/pkg/nt"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

// TableUpdateRate is the network table flush interval set at start-up. It
// bounds the resolution of the recorded telemetry.
const TableUpdateRate = 10 * time.Millisecond

// Clock supplies the telemetry timestamp in seconds.
type Clock interface {
	Timestamp() float64
}

// MonotonicClock counts seconds from its creation.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Timestamp() float64 {
	return time.Since(c.start).Seconds()
}

// Options tune a Loop.
type Options struct {
	// SquareInputs squares the stick axes in teleop arcade drive.
	SquareInputs bool
	Clock        Clock
	Logf         func(format string, args ...any)
}

// Loop is the characterization robot program. Its callbacks are invoked by a
// Driver, one at a time.
type Loop struct {
	rig    *robot.Rig
	table  nt.Table
	layout Layout
	opts   Options

	priorAutoSpeed float64
	telemetry      []float64
	dashboard      []string
}

// NewLoop creates the loop for a rig. The rig must already be checked.
func NewLoop(rig *robot.Rig, table nt.Table, opts Options) (*Loop, error) {
	if err := rig.Check(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = NewMonotonicClock()
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	l := &Loop{
		rig:    rig,
		table:  table,
		layout: LayoutFor(rig),
		opts:   opts,
	}
	l.telemetry = make([]float64, l.layout.Len())

	if l.layout == LayoutArm {
		l.dashboard = []string{"encoder_pos", "encoder_rate"}
	} else {
		l.dashboard = []string{"l_encoder_pos", "l_encoder_rate", "r_encoder_pos", "r_encoder_rate"}
	}
	return l, nil
}

// Layout returns the telemetry layout in use.
func (l *Loop) Layout() Layout { return l.layout }

// PriorAutoSpeed returns the autospeed applied on the last autonomous tick.
func (l *Loop) PriorAutoSpeed() float64 { return l.priorAutoSpeed }

// Telemetry returns a copy of the last published record.
func (l *Loop) Telemetry() []float64 {
	return append([]float64{}, l.telemetry...)
}

// RobotInit configures the hardware once, before the first tick.
func (l *Loop) RobotInit() error {
	for _, side := range l.rig.Sides {
		if err := side.Motors.Configure(robot.NeutralBrake); err != nil {
			return fmt.Errorf("configure %s motors: %w", side.Name, err)
		}
		if err := side.Encoder.Reset(); err != nil {
			return fmt.Errorf("reset %s encoder: %w", side.Name, err)
		}
	}

	l.table.SetUpdateRate(TableUpdateRate)
	return nil
}

// RobotPeriodic publishes encoder readings for the dashboard in every mode.
func (l *Loop) RobotPeriodic() error {
	for i, side := range l.rig.Sides {
		pos, err := side.Encoder.Position()
		if err != nil {
			return fmt.Errorf("read %s position: %w", side.Name, err)
		}
		rate, err := side.Encoder.Rate()
		if err != nil {
			return fmt.Errorf("read %s rate: %w", side.Name, err)
		}
		l.table.SetNumber(nt.DashboardKey(l.dashboard[2*i]), pos)
		l.table.SetNumber(nt.DashboardKey(l.dashboard[2*i+1]), rate)
	}

	if l.layout == LayoutDriveHeading {
		heading, err := l.rig.Gyro.HeadingRadians()
		if err != nil {
			return fmt.Errorf("read gyro: %w", err)
		}
		l.table.SetNumber(nt.DashboardKey("gyro_angle"), heading)
	}
	return nil
}

func (l *Loop) setAll(speed float64) error {
	for _, side := range l.rig.Sides {
		if err := side.Motors.Set(speed); err != nil {
			return fmt.Errorf("set %s motors: %w", side.Name, err)
		}
	}
	return nil
}

// DisabledInit stops every motor.
func (l *Loop) DisabledInit() error {
	l.opts.Logf("Robot disabled")
	return l.setAll(0)
}

func (l *Loop) DisabledPeriodic() error { return nil }

func (l *Loop) AutonomousInit() error {
	l.opts.Logf("Robot in autonomous mode")
	return nil
}

// AutonomousPeriodic applies the commanded autospeed open-loop and publishes
// one telemetry record. Sensors are sampled before the new command is
// applied, so estimated voltages reflect the previous tick's command.
func (l *Loop) AutonomousPeriodic() error {
	now := l.opts.Clock.Timestamp()

	n := len(l.rig.Sides)
	positions := make([]float64, n)
	rates := make([]float64, n)
	for i, side := range l.rig.Sides {
		var err error
		if positions[i], err = side.Encoder.Position(); err != nil {
			return fmt.Errorf("read %s position: %w", side.Name, err)
		}
		if rates[i], err = side.Encoder.Rate(); err != nil {
			return fmt.Errorf("read %s rate: %w", side.Name, err)
		}
	}

	battery, err := l.rig.Battery.Voltage()
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}

	volts := make([]float64, n)
	for i, side := range l.rig.Sides {
		if volts[i], err = side.Motors.OutputVoltage(battery, l.priorAutoSpeed); err != nil {
			return fmt.Errorf("read %s voltage: %w", side.Name, err)
		}
	}

	var heading float64
	if l.layout == LayoutDriveHeading {
		if heading, err = l.rig.Gyro.HeadingRadians(); err != nil {
			return fmt.Errorf("read gyro: %w", err)
		}
	}

	autoSpeed := l.table.Number(nt.AutoSpeedKey, 0)
	l.priorAutoSpeed = autoSpeed

	if err := l.setAll(autoSpeed); err != nil {
		return err
	}

	rec := l.telemetry
	rec[ColTimestamp] = now
	rec[ColBattery] = battery
	rec[ColAutoSpeed] = autoSpeed
	if l.layout == LayoutArm {
		rec[3] = volts[0]
		rec[4] = positions[0]
		rec[5] = rates[0]
	} else {
		rec[3], rec[4] = volts[0], volts[1]
		rec[5], rec[6] = positions[0], positions[1]
		rec[7], rec[8] = rates[0], rates[1]
		if l.layout == LayoutDriveHeading {
			rec[9] = heading
		}
	}

	l.table.SetNumberArray(nt.TelemetryKey, rec)
	return nil
}

func (l *Loop) TeleopInit() error {
	l.opts.Logf("Robot in operator control mode")
	return nil
}

// TeleopPeriodic drives from the joystick. Pushing the stick forward gives
// a negative Y, hence the sign flip.
func (l *Loop) TeleopPeriodic() error {
	js := l.rig.Joystick
	if l.layout == LayoutArm {
		return l.rig.Sides[0].Motors.Set(-js.Y())
	}

	left, right := robot.ArcadeDrive(-js.Y(), js.X(), l.opts.SquareInputs)
	if err := l.rig.Sides[0].Motors.Set(left); err != nil {
		return fmt.Errorf("set %s motors: %w", l.rig.Sides[0].Name, err)
	}
	if err := l.rig.Sides[1].Motors.Set(right); err != nil {
		return fmt.Errorf("set %s motors: %w", l.rig.Sides[1].Name, err)
	}
	return nil
}

func (l *Loop) TestInit() error     { return nil }
func (l *Loop) TestPeriodic() error { return nil }
