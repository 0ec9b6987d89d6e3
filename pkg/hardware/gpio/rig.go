package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/wpilibsuite/frc-characterization/pkg/hardware/servo"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewRig opens the GPIO memory and builds a rig from the configuration.
// Motor ports are BCM pin numbers with hardware PWM. Sides must not share a
// PWM channel.
func NewRig(cfg *robot.Config) (*robot.Rig, error) {
	switch cfg.Gyro {
	case "", "none":
	default:
		return nil, fmt.Errorf("%w: gyro %q is not available on gpio", robot.ErrInvalidConfig, cfg.Gyro)
	}
	if err := checkChannels(cfg); err != nil {
		return nil, err
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	volts := cfg.BatteryVoltage
	if volts <= 0 {
		volts = 12
	}
	rig := robot.NewRig(cfg.Variant)
	rig.Battery = robot.FixedBattery(volts)
	rig.Heading = cfg.Heading
	rig.AddCloser(closerFunc(rpio.Close))

	for i, sc := range cfg.Sides() {
		side, err := buildSide(rig, cfg.SideNames()[i], sc)
		if err != nil {
			rig.Close()
			return nil, err
		}
		rig.Sides = append(rig.Sides, side)
	}

	if err := rig.Check(); err != nil {
		rig.Close()
		return nil, err
	}
	return rig, nil
}

func checkChannels(cfg *robot.Config) error {
	owner := make(map[int]string)
	for i, sc := range cfg.Sides() {
		name := cfg.SideNames()[i]
		if sc == nil {
			return fmt.Errorf("%w: missing %s side", robot.ErrInvalidConfig, name)
		}
		for _, mc := range sc.Motors {
			ch, ok := PWMChannel(mc.Port)
			if !ok {
				return fmt.Errorf("%w: %s motor on pin %d has no hardware PWM", robot.ErrInvalidConfig, name, mc.Port)
			}
			if other, taken := owner[ch]; taken && other != name {
				return fmt.Errorf("%w: %s and %s share PWM channel %d", robot.ErrInvalidConfig, other, name, ch)
			}
			owner[ch] = name
		}
	}
	return nil
}

func buildSide(rig *robot.Rig, name string, sc *robot.SideConfig) (*robot.Side, error) {
	var motors []robot.Actuator
	inverted := make([]bool, len(sc.Motors))
	for j, mc := range sc.Motors {
		m, err := NewPWMMotor(mc.Port)
		if err != nil {
			return nil, fmt.Errorf("%s motor %d: %w", name, j, err)
		}
		rig.AddCloser(m)
		motors = append(motors, m)
		inverted[j] = mc.Inverted
	}
	if len(motors) == 0 {
		return nil, fmt.Errorf("%w: %s side has no motors", robot.ErrInvalidConfig, name)
	}
	group := robot.NewMotorGroup(motors[0], motors[1:]...)
	group.Inverted = inverted

	var src robot.CountSource
	enc := sc.Encoder
	switch enc.Type {
	case "", robot.EncoderQuadrature:
		if len(enc.Channels) != 2 {
			return nil, fmt.Errorf("%w: %s quadrature encoder needs two channels", robot.ErrInvalidConfig, name)
		}
		q := NewQuadrature(enc.Channels[0], enc.Channels[1], 0)
		rig.AddCloser(q)
		src = q
	case robot.EncoderFeetech:
		s, err := servo.Open(enc.SerialPort, enc.ServoID)
		if err != nil {
			return nil, fmt.Errorf("%s encoder: %w", name, err)
		}
		rig.AddCloser(s)
		src = s
	default:
		return nil, fmt.Errorf("%w: %s encoder type %q", robot.ErrInvalidConfig, name, enc.Type)
	}

	return &robot.Side{
		Name:    name,
		Motors:  group,
		Encoder: robot.NewEncoder(src, enc.EncoderCalibration),
	}, nil
}
