package robot

import (
	"math"
	"testing"
)

type fakeMotor struct {
	speed    float64
	inverted bool
	neutral  NeutralMode
	sets     int
}

func (m *fakeMotor) Set(speed float64) error {
	m.speed = speed
	m.sets++
	return nil
}
func (m *fakeMotor) Get() float64                          { return m.speed }
func (m *fakeMotor) SetInverted(inverted bool)             { m.inverted = inverted }
func (m *fakeMotor) SetNeutralMode(mode NeutralMode) error { m.neutral = mode; return nil }

type smartMotor struct {
	fakeMotor
	leader Actuator
	volts  float64
}

func (m *smartMotor) Follow(leader Actuator) error        { m.leader = leader; return nil }
func (m *smartMotor) MotorOutputVoltage() (float64, error) { return m.volts, nil }

func TestMotorGroup_Configure(t *testing.T) {
	leader := &fakeMotor{}
	pwm := &fakeMotor{}
	smart := &smartMotor{}

	g := NewMotorGroup(leader, pwm, smart)
	g.Inverted = []bool{false, true, false}

	if err := g.Configure(NeutralBrake); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if !pwm.inverted || leader.inverted {
		t.Errorf("inversion not applied: leader=%v pwm=%v", leader.inverted, pwm.inverted)
	}
	for i, m := range []*fakeMotor{leader, pwm, &smart.fakeMotor} {
		if m.neutral != NeutralBrake {
			t.Errorf("motor %d neutral = %s, want brake", i, m.neutral)
		}
	}
	if smart.leader != leader {
		t.Error("smart follower should follow the leader in hardware")
	}

	if err := g.Set(0.25); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if leader.speed != 0.25 || pwm.speed != 0.25 {
		t.Errorf("Set(0.25): leader=%f pwm=%f", leader.speed, pwm.speed)
	}
	if smart.sets != 0 {
		t.Errorf("hardware follower was commanded %d times, want 0", smart.sets)
	}
}

func TestMotorGroup_SetLimits(t *testing.T) {
	leader := &fakeMotor{}
	g := NewMotorGroup(leader)
	if err := g.Configure(NeutralBrake); err != nil {
		t.Fatal(err)
	}

	g.Set(1.7)
	if leader.speed != 1 {
		t.Errorf("Set(1.7) = %f, want 1", leader.speed)
	}
	g.Set(-3)
	if g.Get() != -1 {
		t.Errorf("Set(-3) = %f, want -1", g.Get())
	}
}

func TestMotorGroup_OutputVoltage(t *testing.T) {
	pwm := NewMotorGroup(&fakeMotor{})
	v, err := pwm.OutputVoltage(12.5, -0.4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 12.5*math.Abs(-0.4) {
		t.Errorf("estimated voltage = %f, want %f", v, 12.5*0.4)
	}

	smart := NewMotorGroup(&smartMotor{volts: 3.3})
	v, err = smart.OutputVoltage(12.5, -0.4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 3.3 {
		t.Errorf("reported voltage = %f, want 3.3", v)
	}
}

func TestMotorGroup_NoLeader(t *testing.T) {
	g := &MotorGroup{}
	if err := g.Configure(NeutralBrake); err == nil {
		t.Error("Configure without a leader should fail")
	}
}
