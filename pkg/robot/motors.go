// Package robot provides the hardware abstractions driven by the characterization loop.
package robot

import (
	"errors"
	"fmt"
	"math"
)

// NeutralMode selects what a motor controller does when commanded to zero.
type NeutralMode int

const (
	NeutralCoast NeutralMode = iota
	NeutralBrake
)

func (m NeutralMode) String() string {
	if m == NeutralBrake {
		return "brake"
	}
	return "coast"
}

// Actuator is a single motor controller taking open-loop commands in [-1, 1].
type Actuator interface {
	Set(speed float64) error
	Get() float64
	SetInverted(inverted bool)
	SetNeutralMode(mode NeutralMode) error
}

// VoltageReporter is implemented by smart controllers that can report the
// voltage they are applying to the motor.
type VoltageReporter interface {
	MotorOutputVoltage() (float64, error)
}

// Follower is implemented by controllers that can mirror a leader in hardware.
type Follower interface {
	Follow(leader Actuator) error
}

// MotorGroup drives one mechanism side: a leader and any number of followers.
// Followers that cannot follow in hardware are commanded alongside the leader.
type MotorGroup struct {
	Leader    Actuator
	Followers []Actuator
	// Inverted holds one flag per motor, leader first.
	Inverted []bool

	driven []Actuator
}

// NewMotorGroup creates a group with no motor inverted.
func NewMotorGroup(leader Actuator, followers ...Actuator) *MotorGroup {
	return &MotorGroup{
		Leader:    leader,
		Followers: followers,
		Inverted:  make([]bool, len(followers)+1),
	}
}

func (g *MotorGroup) motors() []Actuator {
	return append([]Actuator{g.Leader}, g.Followers...)
}

// Configure applies inversion and neutral mode to every motor and wires the
// followers to the leader.
func (g *MotorGroup) Configure(mode NeutralMode) error {
	if g.Leader == nil {
		return errors.New("motor group has no leader")
	}

	for i, m := range g.motors() {
		if i < len(g.Inverted) {
			m.SetInverted(g.Inverted[i])
		}
		if err := m.SetNeutralMode(mode); err != nil {
			return fmt.Errorf("set neutral mode on motor %d: %w", i, err)
		}
	}

	g.driven = g.driven[:0]
	for i, f := range g.Followers {
		if hw, ok := f.(Follower); ok {
			if err := hw.Follow(g.Leader); err != nil {
				return fmt.Errorf("follow leader with motor %d: %w", i+1, err)
			}
			continue
		}
		g.driven = append(g.driven, f)
	}
	return nil
}

// Set commands the leader and every follower not mirroring it in hardware.
func (g *MotorGroup) Set(speed float64) error {
	speed = Limit(speed)
	if err := g.Leader.Set(speed); err != nil {
		return err
	}
	for _, m := range g.driven {
		if err := m.Set(speed); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the leader's last command.
func (g *MotorGroup) Get() float64 {
	return g.Leader.Get()
}

// OutputVoltage reads the leader's applied voltage, or estimates it from the
// battery and the previous command when the controller cannot report it.
func (g *MotorGroup) OutputVoltage(battery, priorSpeed float64) (float64, error) {
	if vr, ok := g.Leader.(VoltageReporter); ok {
		return vr.MotorOutputVoltage()
	}
	return battery * math.Abs(priorSpeed), nil
}

// Limit clamps a command to [-1, 1].
func Limit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
