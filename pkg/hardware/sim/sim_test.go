package sim

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
	"github.com/wpilibsuite/frc-characterization/pkg/robot"
)

type manualClock struct{ t time.Time }

func newManualClock() *manualClock             { return &manualClock{t: time.Unix(1000, 0)} }
func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var testModel = Model{KS: 0.5, KV: 1.8, KA: 0.3}

func TestPlant_SteadyStateVelocity(t *testing.T) {
	clock := newManualClock()
	p := NewPlant(testModel, clock.now)
	m := NewMotor(p, NewBattery(12, 0))

	m.Set(0.5)
	clock.advance(5 * time.Second)

	_, vel := p.State()
	want := (6 - testModel.KS) / testModel.KV
	if math.Abs(vel-want) > 1e-3 {
		t.Errorf("velocity = %f, want %f", vel, want)
	}
}

func TestPlant_StaticFriction(t *testing.T) {
	clock := newManualClock()
	p := NewPlant(testModel, clock.now)
	m := NewMotor(p, NewBattery(12, 0))

	// 0.48 V is below kS.
	m.Set(0.04)
	clock.advance(time.Second)

	pos, vel := p.State()
	if pos != 0 || vel != 0 {
		t.Errorf("plant moved below kS: pos=%f vel=%f", pos, vel)
	}
}

func TestPlant_BrakeStopsFasterThanCoast(t *testing.T) {
	spinDown := func(mode robot.NeutralMode) float64 {
		clock := newManualClock()
		p := NewPlant(testModel, clock.now)
		m := NewMotor(p, NewBattery(12, 0))
		m.SetNeutralMode(mode)
		m.Set(1)
		clock.advance(3 * time.Second)
		m.Set(0)
		clock.advance(200 * time.Millisecond)
		_, vel := p.State()
		return vel
	}

	brake, coast := spinDown(robot.NeutralBrake), spinDown(robot.NeutralCoast)
	if !(brake < coast) {
		t.Errorf("brake velocity %f should be below coast velocity %f", brake, coast)
	}
}

func TestPlant_ComesToRest(t *testing.T) {
	clock := newManualClock()
	p := NewPlant(testModel, clock.now)
	m := NewMotor(p, NewBattery(12, 0))

	m.Set(-0.5)
	clock.advance(2 * time.Second)
	m.Set(0)
	clock.advance(10 * time.Second)

	pos, vel := p.State()
	if vel != 0 {
		t.Errorf("velocity = %f after coasting, want 0", vel)
	}
	if pos >= 0 {
		t.Errorf("position = %f, want negative", pos)
	}
}

func TestSmartMotor_Follow(t *testing.T) {
	clock := newManualClock()
	p := NewPlant(testModel, clock.now)
	b := NewBattery(12, 0.15)
	leader, follower := NewSmartMotor(p, b), NewSmartMotor(p, b)

	if err := follower.Follow(leader); err != nil {
		t.Fatal(err)
	}
	leader.Set(0.5)

	if follower.Get() != 0.5 {
		t.Errorf("follower command = %f, want 0.5", follower.Get())
	}
	v, _ := follower.MotorOutputVoltage()
	// Two motors at half output sag the battery by 0.15 V.
	if math.Abs(v-0.5*11.85) > 1e-9 {
		t.Errorf("follower voltage = %f, want %f", v, 0.5*11.85)
	}

	follower.SetInverted(true)
	if v, _ := follower.MotorOutputVoltage(); v >= 0 {
		t.Errorf("inverted follower voltage = %f, want negative", v)
	}

	other := NewSmartMotor(NewPlant(testModel, clock.now), b)
	if err := other.Follow(leader); err == nil {
		t.Error("following across mechanisms should fail")
	}
}

func TestEncoder(t *testing.T) {
	clock := newManualClock()
	p := NewPlant(testModel, clock.now)
	m := NewMotor(p, NewBattery(12, 0))
	enc := NewEncoder(p, 360)

	m.Set(1)
	clock.advance(time.Second)
	pos, vel := p.State()

	count, _ := enc.Count()
	rate, _ := enc.Velocity()
	if math.Abs(count-pos*360) > 1e-9 || math.Abs(rate-vel*360) > 1e-9 {
		t.Errorf("count=%f rate=%f for pos=%f vel=%f", count, rate, pos, vel)
	}

	enc.Reset()
	if c, _ := enc.Count(); c != 0 {
		t.Errorf("count after reset = %f", c)
	}

	enc.VelocityScale = 10
	enc.Reversed = true
	if r, _ := enc.Velocity(); math.Abs(r+vel*36) > 1e-9 {
		t.Errorf("scaled reversed rate = %f, want %f", r, -vel*36)
	}
}

func TestNewRig_Drive(t *testing.T) {
	clock := newManualClock()
	cfg := robot.DefaultConfig(robot.VariantDrive)
	cfg.Gyro = "sim"
	cfg.Heading = true

	rig, err := NewRig(cfg, clock.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(rig.Sides) != 2 {
		t.Fatalf("sides = %d, want 2", len(rig.Sides))
	}

	for _, s := range rig.Sides {
		if err := s.Motors.Configure(robot.NeutralBrake); err != nil {
			t.Fatal(err)
		}
	}
	rig.Sides[0].Motors.Set(0.2)
	rig.Sides[1].Motors.Set(0.6)
	clock.advance(time.Second)

	left, _ := rig.Sides[0].Encoder.Position()
	right, _ := rig.Sides[1].Encoder.Position()
	if left <= 0 || right <= left {
		t.Errorf("positions left=%f right=%f, want 0 < left < right", left, right)
	}

	heading, _ := rig.Gyro.HeadingRadians()
	if want := (right - left) / cfg.Sim.TrackWidth; math.Abs(heading-want) > 1e-9 {
		t.Errorf("heading = %f, want %f", heading, want)
	}
}

func TestNewRig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*robot.Config)
	}{
		{"zero ka", func(c *robot.Config) { c.Sim.KA = 0 }},
		{"unknown gyro", func(c *robot.Config) { c.Gyro = "navx" }},
		{"gyro on arm", func(c *robot.Config) { c.Variant = robot.VariantArm; c.Gyro = "sim" }},
		{"no motors", func(c *robot.Config) { c.Left.Motors = nil }},
	}
	for _, tt := range tests {
		cfg := robot.DefaultConfig(robot.VariantDrive)
		tt.mutate(cfg)
		if cfg.Variant == robot.VariantArm {
			cfg.Arm = robot.DefaultConfig(robot.VariantArm).Arm
		}
		if _, err := NewRig(cfg, nil); !errors.Is(err, robot.ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", tt.name, err)
		}
	}
}

type simClock struct{ c *manualClock }

func (s simClock) Timestamp() float64 { return float64(s.c.t.UnixNano()) / 1e9 }

func TestLoopOnSimulatedArm(t *testing.T) {
	clock := newManualClock()
	cfg := robot.DefaultConfig(robot.VariantArm)
	cfg.Sim.Smart = false
	rig, err := NewRig(cfg, clock.now)
	if err != nil {
		t.Fatal(err)
	}

	table := nt.NewMemTable()
	loop, err := characterize.NewLoop(rig, table, characterize.Options{Clock: simClock{clock}})
	if err != nil {
		t.Fatal(err)
	}
	d := characterize.NewDriver(loop, characterize.DriverConfig{Modes: characterize.FixedMode(characterize.ModeAutonomous)})

	table.SetNumber(nt.AutoSpeedKey, 0.5)
	var last []float64
	for i := 0; i < 150; i++ {
		clock.advance(20 * time.Millisecond)
		if err := d.Step(); err != nil {
			t.Fatal(err)
		}
		rec := table.NumberArray(nt.TelemetryKey)
		if last != nil && rec[4] < last[4] {
			t.Fatalf("tick %d: position went backwards", i)
		}
		last = rec
	}

	// Without voltage read-back the loop reports battery * prior command.
	if math.Abs(last[3]-0.5*last[1]) > 1e-9 {
		t.Errorf("volts = %f, battery = %f", last[3], last[1])
	}
	// Degrees per second at steady state.
	want := (0.5*last[1] - cfg.Sim.KS) / cfg.Sim.KV * 360
	if math.Abs(last[5]-want) > 0.5 {
		t.Errorf("rate = %f, want ~%f", last[5], want)
	}
}
