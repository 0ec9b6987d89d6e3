package sim

import (
	"fmt"
	"time"

	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

// batterySag is the voltage lost per motor at full output.
const batterySag = 0.15

// NewRig builds a simulated rig from a robot configuration. The right side
// of a drivetrain is mirrored, so its motors and encoder need inverting to
// drive forward. now defaults to time.Now.
func NewRig(cfg *robot.Config, now func() time.Time) (*robot.Rig, error) {
	if cfg.Sim.KV <= 0 || cfg.Sim.KA <= 0 {
		return nil, fmt.Errorf("%w: sim needs positive kv and ka", robot.ErrInvalidConfig)
	}
	nominal := cfg.BatteryVoltage
	if nominal <= 0 {
		nominal = 12
	}
	model := Model{KS: cfg.Sim.KS, KV: cfg.Sim.KV, KA: cfg.Sim.KA}
	battery := NewBattery(nominal, batterySag)

	rig := robot.NewRig(cfg.Variant)
	rig.Battery = Sense{battery}
	rig.Heading = cfg.Heading

	var plants []*Plant
	for i, sc := range cfg.Sides() {
		name := cfg.SideNames()[i]
		if sc == nil {
			return nil, fmt.Errorf("%w: missing %s side", robot.ErrInvalidConfig, name)
		}
		plant := NewPlant(model, now)
		mirrored := cfg.Variant == robot.VariantDrive && i == 1
		if mirrored {
			plant.Mirror()
		}

		var motors []robot.Actuator
		inverted := make([]bool, len(sc.Motors))
		for j, mc := range sc.Motors {
			inverted[j] = mc.Inverted
			if cfg.Sim.Smart {
				motors = append(motors, NewSmartMotor(plant, battery))
			} else {
				motors = append(motors, NewMotor(plant, battery))
			}
		}
		if len(motors) == 0 {
			return nil, fmt.Errorf("%w: %s side has no motors", robot.ErrInvalidConfig, name)
		}
		group := robot.NewMotorGroup(motors[0], motors[1:]...)
		group.Inverted = inverted

		src := NewEncoder(plant, sc.Encoder.PulsesPerRev)
		src.Reversed = mirrored
		if sc.Encoder.VelocityScale > 0 {
			src.VelocityScale = sc.Encoder.VelocityScale
		}

		rig.Sides = append(rig.Sides, &robot.Side{
			Name:    name,
			Motors:  group,
			Encoder: robot.NewEncoder(src, sc.Encoder.EncoderCalibration),
		})
		plants = append(plants, plant)
	}

	switch cfg.Gyro {
	case "", "none":
	case "sim":
		if cfg.Variant != robot.VariantDrive {
			return nil, fmt.Errorf("%w: sim gyro needs a drivetrain", robot.ErrInvalidConfig)
		}
		rig.Gyro = Gyro{
			Left:          plants[0],
			Right:         plants[1],
			WheelDiameter: cfg.Left.Encoder.WheelDiameter,
			TrackWidth:    cfg.Sim.TrackWidth,
		}
	default:
		return nil, fmt.Errorf("%w: unknown gyro %q", robot.ErrInvalidConfig, cfg.Gyro)
	}

	if err := rig.Check(); err != nil {
		return nil, err
	}
	return rig, nil
}
