package sim

import (
	"errors"

	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

// Motor is a simulated PWM speed controller. It cannot report its output
// voltage nor follow another controller.
type Motor struct {
	plant   *Plant
	battery *Battery

	speed    float64
	inverted bool
	leader   *Motor
	// followers mirror this motor's command.
	followers []*Motor
}

// NewMotor attaches a controller to a plant, powered by battery.
func NewMotor(p *Plant, b *Battery) *Motor {
	m := &Motor{plant: p, battery: b}
	p.mu.Lock()
	p.motors = append(p.motors, m)
	p.mu.Unlock()
	return m
}

// Set commands the motor. The plant runs on the previous command up to now.
func (m *Motor) Set(speed float64) error {
	p := m.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sync()

	m.speed = robot.Limit(speed)
	m.battery.setLoad(m, m.speed)
	for _, f := range m.followers {
		m.battery.setLoad(f, m.speed)
	}
	return nil
}

func (m *Motor) Get() float64 {
	m.plant.mu.Lock()
	defer m.plant.mu.Unlock()
	return m.command()
}

func (m *Motor) SetInverted(inverted bool) {
	p := m.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sync()
	m.inverted = inverted
}

func (m *Motor) SetNeutralMode(mode robot.NeutralMode) error {
	p := m.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sync()
	p.brake = mode == robot.NeutralBrake
	return nil
}

// command is the speed the motor is running at. Callers hold the plant lock.
func (m *Motor) command() float64 {
	if m.leader != nil {
		return m.leader.speed
	}
	return m.speed
}

// applied is the voltage across the motor. Callers hold the plant lock.
func (m *Motor) applied() float64 {
	v := m.command() * m.battery.Voltage()
	if m.inverted {
		v = -v
	}
	return v
}

// SmartMotor is a simulated CAN controller that reports its output voltage
// and can follow another controller on the same mechanism.
type SmartMotor struct {
	*Motor
}

// NewSmartMotor attaches a smart controller to a plant.
func NewSmartMotor(p *Plant, b *Battery) *SmartMotor {
	return &SmartMotor{Motor: NewMotor(p, b)}
}

// MotorOutputVoltage returns the voltage applied to the motor.
func (m *SmartMotor) MotorOutputVoltage() (float64, error) {
	p := m.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.applied(), nil
}

// Follow mirrors the leader's command. Inversion stays per controller.
func (m *SmartMotor) Follow(leader robot.Actuator) error {
	var lm *Motor
	switch l := leader.(type) {
	case *SmartMotor:
		lm = l.Motor
	case *Motor:
		lm = l
	default:
		return errors.New("sim: can only follow a simulated controller")
	}
	if lm.plant != m.plant {
		return errors.New("sim: leader drives a different mechanism")
	}
	if lm == m.Motor {
		return errors.New("sim: motor cannot follow itself")
	}

	p := m.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sync()
	m.leader = lm
	lm.followers = append(lm.followers, m.Motor)
	m.battery.setLoad(m.Motor, lm.speed)
	return nil
}
