package characterize

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/wpilibsuite/frc-characterization/pkg/nt"
)

type recordingRobot struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recordingRobot) call(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return r.fail[name]
}

func (r *recordingRobot) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.calls
	r.calls = nil
	return c
}

func (r *recordingRobot) RobotInit() error          { return r.call("RobotInit") }
func (r *recordingRobot) RobotPeriodic() error      { return r.call("RobotPeriodic") }
func (r *recordingRobot) DisabledInit() error       { return r.call("DisabledInit") }
func (r *recordingRobot) DisabledPeriodic() error   { return r.call("DisabledPeriodic") }
func (r *recordingRobot) AutonomousInit() error     { return r.call("AutonomousInit") }
func (r *recordingRobot) AutonomousPeriodic() error { return r.call("AutonomousPeriodic") }
func (r *recordingRobot) TeleopInit() error         { return r.call("TeleopInit") }
func (r *recordingRobot) TeleopPeriodic() error     { return r.call("TeleopPeriodic") }
func (r *recordingRobot) TestInit() error           { return r.call("TestInit") }
func (r *recordingRobot) TestPeriodic() error       { return r.call("TestPeriodic") }

func TestDriver_StepSequence(t *testing.T) {
	table := nt.NewMemTable()
	r := &recordingRobot{}
	d := NewDriver(r, DriverConfig{Modes: ControlWordSource{Table: table}})

	steps := []struct {
		mode  Mode
		calls []string
	}{
		{ModeDisabled, []string{"RobotInit", "DisabledInit", "DisabledPeriodic", "RobotPeriodic"}},
		{ModeDisabled, []string{"DisabledPeriodic", "RobotPeriodic"}},
		{ModeAutonomous, []string{"AutonomousInit", "AutonomousPeriodic", "RobotPeriodic"}},
		{ModeAutonomous, []string{"AutonomousPeriodic", "RobotPeriodic"}},
		{ModeTeleop, []string{"TeleopInit", "TeleopPeriodic", "RobotPeriodic"}},
		{ModeTest, []string{"TestInit", "TestPeriodic", "RobotPeriodic"}},
		{ModeDisabled, []string{"DisabledInit", "DisabledPeriodic", "RobotPeriodic"}},
	}

	for i, s := range steps {
		table.SetNumber(nt.ControlWordKey, float64(ControlWord(s.mode)))
		if err := d.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := r.take(); !reflect.DeepEqual(got, s.calls) {
			t.Errorf("step %d (%s): calls = %v, want %v", i, s.mode, got, s.calls)
		}
		if d.Mode() != s.mode {
			t.Errorf("step %d: mode = %s, want %s", i, d.Mode(), s.mode)
		}
	}
}

func TestDriver_ErrorsDoNotStopTicks(t *testing.T) {
	boom := errors.New("motor fault")
	r := &recordingRobot{fail: map[string]error{"DisabledPeriodic": boom}}
	d := NewDriver(r, DriverConfig{})

	err := d.Step()
	if !errors.Is(err, boom) {
		t.Fatalf("Step error = %v, want %v", err, boom)
	}
	got := r.take()
	if got[len(got)-1] != "RobotPeriodic" {
		t.Errorf("RobotPeriodic skipped after a failing callback: %v", got)
	}

	s := <-d.States()
	if !errors.Is(s.Error, boom) || s.Mode != ModeDisabled {
		t.Errorf("state = %+v", s)
	}
}

func TestDriver_InitFailure(t *testing.T) {
	boom := errors.New("no encoder")
	r := &recordingRobot{fail: map[string]error{"RobotInit": boom}}
	d := NewDriver(r, DriverConfig{Hz: 100})

	err := d.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want %v", err, boom)
	}
}

func TestDriver_StartDisablesOnCancel(t *testing.T) {
	r := &recordingRobot{}
	d := NewDriver(r, DriverConfig{Hz: 200, Modes: FixedMode(ModeTeleop)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Wait for a few ticks.
	deadline := time.After(2 * time.Second)
	for ticks := 0; ticks < 3; {
		select {
		case <-d.States():
			ticks++
		case <-deadline:
			t.Fatal("driver did not tick")
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start returned %v", err)
	}
	calls := r.take()
	if calls[len(calls)-1] != "DisabledInit" {
		t.Errorf("last call = %s, want DisabledInit", calls[len(calls)-1])
	}
}

func TestDriver_LoopTelemetryInState(t *testing.T) {
	rig, _, _ := newArmRig()
	table := nt.NewMemTable()
	l, err := NewLoop(rig, table, Options{Clock: fixedClock(1)})
	if err != nil {
		t.Fatal(err)
	}
	d := NewDriver(l, DriverConfig{Modes: FixedMode(ModeAutonomous)})

	table.SetNumber(nt.AutoSpeedKey, 0.5)
	if err := d.Step(); err != nil {
		t.Fatal(err)
	}
	s := <-d.States()
	if len(s.Telemetry) != 6 || s.Telemetry[ColAutoSpeed] != 0.5 {
		t.Errorf("state telemetry = %v", s.Telemetry)
	}
}

func TestControlWord(t *testing.T) {
	for _, m := range []Mode{ModeDisabled, ModeAutonomous, ModeTeleop, ModeTest} {
		if got := DecodeControlWord(ControlWord(m)); got != m {
			t.Errorf("round trip %s -> %s", m, got)
		}
	}

	if DecodeControlWord(EnabledBit|AutoBit|EmergencyStopBit) != ModeDisabled {
		t.Error("emergency stop must disable")
	}
	if DecodeControlWord(AutoBit) != ModeDisabled {
		t.Error("auto without enable must be disabled")
	}

	table := nt.NewMemTable()
	if (ControlWordSource{Table: table}).Mode() != ModeDisabled {
		t.Error("missing control word must mean disabled")
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeDisabled, ModeAutonomous, ModeTeleop, ModeTest} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %s, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("practice"); err == nil {
		t.Error("ParseMode should reject unknown modes")
	}
}
