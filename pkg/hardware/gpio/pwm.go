// Package gpio drives a characterization rig from a Raspberry Pi: PWM speed
// controllers on the hardware PWM pins and quadrature encoders on plain
// inputs.
package gpio

import (
	"fmt"
	"math"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

// Servo-style PWM timing, in microseconds at a 1 MHz PWM clock.
const (
	pwmClock   = 1_000_000
	pwmPeriod  = 20_000
	pwmNeutral = 1500
	pwmRange   = 500
)

// PWMChannel returns the hardware PWM channel behind a BCM pin.
func PWMChannel(pin int) (int, bool) {
	switch pin {
	case 12, 18:
		return 0, true
	case 13, 19:
		return 1, true
	}
	return 0, false
}

// PulseWidth maps a command in [-1, 1] to a pulse width in microseconds.
func PulseWidth(speed float64) uint32 {
	return uint32(math.Round(pwmNeutral + pwmRange*robot.Limit(speed)))
}

// PWMMotor is a PWM speed controller. Its neutral mode is set by a jumper
// on the controller, so SetNeutralMode only records the request.
type PWMMotor struct {
	mu       sync.Mutex
	write    func(pulse uint32)
	speed    float64
	inverted bool
	neutral  robot.NeutralMode
}

// NewPWMMotor configures a hardware PWM pin for a speed controller and
// outputs neutral. rpio must be open.
func NewPWMMotor(pin int) (*PWMMotor, error) {
	if _, ok := PWMChannel(pin); !ok {
		return nil, fmt.Errorf("pin %d has no hardware PWM", pin)
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(pwmClock)

	m := newPWMMotor(func(pulse uint32) {
		p.DutyCycle(pulse, pwmPeriod)
	})
	return m, nil
}

func newPWMMotor(write func(pulse uint32)) *PWMMotor {
	m := &PWMMotor{write: write}
	m.write(pwmNeutral)
	return m
}

func (m *PWMMotor) Set(speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = robot.Limit(speed)
	out := m.speed
	if m.inverted {
		out = -out
	}
	m.write(PulseWidth(out))
	return nil
}

func (m *PWMMotor) Get() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

func (m *PWMMotor) SetInverted(inverted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inverted = inverted
}

func (m *PWMMotor) SetNeutralMode(mode robot.NeutralMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.neutral = mode
	return nil
}

// Close outputs neutral.
func (m *PWMMotor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = 0
	m.write(pwmNeutral)
	return nil
}
