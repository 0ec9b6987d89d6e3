// Package datalog runs the characterization tests from the host: it commands
// autospeed over the network table and records the telemetry the robot
// publishes while in autonomous mode.
package datalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
)

// Defaults from the reference logger.
const (
	DefaultFastSpeed           = 0.5
	DefaultRamp                = 0.001
	DefaultRampInterval        = 50 * time.Millisecond
	DefaultStationaryTolerance = 0.01
	DefaultStationaryTime      = time.Second
	DefaultDuration            = 5 * time.Second
	pollInterval               = 10 * time.Millisecond
)

// Test is one autonomous run: autospeed starts at InitialSpeed and grows by
// Ramp every ramp interval.
type Test struct {
	Name         string
	InitialSpeed float64
	Ramp         float64
}

// DefaultTests returns the quasistatic and dynamic tests in both directions.
func DefaultTests(fast float64) []Test {
	fast = math.Abs(fast)
	return []Test{
		{"slow-forward", 0, DefaultRamp},
		{"slow-backward", 0, -DefaultRamp},
		{"fast-forward", fast, 0},
		{"fast-backward", -fast, 0},
	}
}

// Config holds configuration for a logging session.
type Config struct {
	Layout characterize.Layout
	Tests  []Test

	RampInterval        time.Duration
	StationaryTolerance float64
	StationaryTime      time.Duration

	// AutoEnable makes the logger switch the robot into autonomous itself,
	// and disable it again after Duration, instead of waiting for an
	// operator.
	AutoEnable bool
	Duration   time.Duration

	Logf func(format string, args ...any)
}

func (c *Config) defaults() {
	if c.Tests == nil {
		c.Tests = DefaultTests(DefaultFastSpeed)
	}
	if c.RampInterval <= 0 {
		c.RampInterval = DefaultRampInterval
	}
	if c.StationaryTolerance <= 0 {
		c.StationaryTolerance = DefaultStationaryTolerance
	}
	if c.StationaryTime <= 0 {
		c.StationaryTime = DefaultStationaryTime
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.Logf == nil {
		c.Logf = func(string, ...any) {}
	}
}

// ErrDisconnected is returned by Run when the table loses its broker.
var ErrDisconnected = errors.New("network table disconnected, results won't be reliable")

// Logger collects one data set per test.
type Logger struct {
	table nt.Table
	cfg   Config

	mu        sync.Mutex
	mode      characterize.Mode
	recording bool
	data      [][]float64
	last      []float64

	modeCh chan struct{}
	// runs receives the records of each autonomous period when it ends.
	runs chan [][]float64

	lost     chan struct{}
	lostOnce sync.Once
}

// New creates a logger and subscribes it to the table.
func New(table nt.Table, cfg Config) *Logger {
	cfg.defaults()
	l := &Logger{
		table:  table,
		cfg:    cfg,
		mode:   characterize.ModeDisabled,
		modeCh: make(chan struct{}, 1),
		runs:   make(chan [][]float64, len(cfg.Tests)+1),
		lost:   make(chan struct{}),
	}
	table.AddListener(nt.ControlWordKey, l.onControlWord)
	table.AddListener(nt.TelemetryKey, l.onTelemetry)
	if cn, ok := table.(nt.ConnectionNotifier); ok {
		cn.AddConnectionListener(l.onConnection)
	}
	return l
}

// onConnection gives up the run on a disconnect. The robot is treated as
// disabled so the records of a test in progress are handed over first.
func (l *Logger) onConnection(connected bool) {
	if connected {
		return
	}
	l.cfg.Logf("ERROR: network table disconnected")
	l.lostOnce.Do(func() { close(l.lost) })
	l.onControlWord(nt.ControlWordKey, nt.NumberValue(0))
}

func (l *Logger) disconnected() bool {
	select {
	case <-l.lost:
		return true
	default:
		return false
	}
}

func (l *Logger) onControlWord(_ string, v nt.Value) {
	mode := characterize.DecodeControlWord(int(v.Number))

	l.mu.Lock()
	last := l.mode
	if last == mode {
		l.mu.Unlock()
		return
	}
	l.mode = mode
	data := l.data
	l.data = nil
	l.mu.Unlock()

	l.cfg.Logf("Robot mode: %s -> %s", last, mode)

	select {
	case l.modeCh <- struct{}{}:
	default:
	}

	if last == characterize.ModeAutonomous {
		l.cfg.Logf("%d items received", len(data))
		select {
		case l.runs <- data:
		default:
			l.cfg.Logf("Dropped %d items: previous run not collected", len(data))
		}
	}
}

func (l *Logger) onTelemetry(_ string, v nt.Value) {
	rec := append([]float64(nil), v.Array...)

	l.mu.Lock()
	l.last = rec
	if !l.recording {
		l.mu.Unlock()
		return
	}
	l.data = append(l.data, rec)
	n := len(l.data)
	l.mu.Unlock()

	if n%100 == 0 && len(rec) > characterize.ColAutoSpeed {
		l.cfg.Logf("Received %d datapoints (last commanded speed: %.2f)", n, rec[characterize.ColAutoSpeed])
	}
}

// Mode returns the last mode seen on the control word.
func (l *Logger) Mode() characterize.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

func (l *Logger) setRecording(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = on
}

func (l *Logger) positions() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	cols := l.cfg.Layout.PositionColumns()
	out := make([]float64, len(cols))
	for i, c := range cols {
		if c < len(l.last) {
			out[i] = l.last[c]
		}
	}
	return out
}

func (l *Logger) setMode(m characterize.Mode) {
	l.table.SetNumber(nt.ControlWordKey, float64(characterize.ControlWord(m)))
}

// Run performs every test in order and returns the data collected so far.
// It stops early when the robot leaves autonomous before a test starts, and
// gives up with ErrDisconnected when the table loses its broker.
func (l *Logger) Run(ctx context.Context) (Results, error) {
	results := Results{}
	defer l.table.SetNumber(nt.AutoSpeedKey, 0)

	for i, test := range l.cfg.Tests {
		l.table.SetNumber(nt.AutoSpeedKey, 0)
		l.setRecording(false)
		l.drainRuns()

		l.cfg.Logf("Autonomous %d/%d: %s", i+1, len(l.cfg.Tests), test.Name)
		if l.cfg.AutoEnable {
			l.setMode(characterize.ModeAutonomous)
		} else {
			l.cfg.Logf("Please enable the robot in autonomous mode.")
			l.cfg.Logf("WARNING: It will not automatically stop moving, so disable the robot before it hits something!")
		}

		if err := l.waitForAuto(ctx); err != nil {
			return results, err
		}

		left, err := l.waitForStationary(ctx)
		if err != nil {
			return results, err
		}
		if left {
			l.cfg.Logf("Robot exited autonomous mode before data could be sent?")
			break
		}

		data, err := l.ramp(ctx, test)
		if err != nil {
			return results, err
		}
		l.sanityCheck(data)
		results[test.Name] = data
	}

	if l.cfg.AutoEnable {
		l.setMode(characterize.ModeDisabled)
	}
	return results, nil
}

func (l *Logger) drainRuns() {
	for {
		select {
		case <-l.runs:
		default:
			return
		}
	}
}

func (l *Logger) waitForAuto(ctx context.Context) error {
	for l.Mode() != characterize.ModeAutonomous {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.lost:
			return ErrDisconnected
		case <-l.modeCh:
		}
	}
	return nil
}

// waitForStationary returns once no position has moved more than the
// tolerance for the stationary time, or reports that autonomous ended.
func (l *Logger) waitForStationary(ctx context.Context) (left bool, err error) {
	l.cfg.Logf("Waiting for robot to stop moving for at least %s...", l.cfg.StationaryTime)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	since := time.Now()
	last := l.positions()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-l.lost:
			return false, ErrDisconnected
		case <-l.runs:
			if l.disconnected() {
				return false, ErrDisconnected
			}
			return true, nil
		case now := <-ticker.C:
			cur := l.positions()
			for i := range cur {
				if math.Abs(cur[i]-last[i]) > l.cfg.StationaryTolerance {
					since = now
					break
				}
			}
			last = cur
			if now.Sub(since) > l.cfg.StationaryTime {
				l.cfg.Logf("Robot has waited long enough, beginning test")
				return false, nil
			}
		}
	}
}

// ramp drives the test until the robot leaves autonomous and returns the
// records received meanwhile.
func (l *Logger) ramp(ctx context.Context, test Test) ([][]float64, error) {
	l.cfg.Logf("Activating robot at %.1f%%, adding %.3f per %s", test.InitialSpeed*100, test.Ramp, l.cfg.RampInterval)

	speed := test.InitialSpeed
	l.setRecording(true)
	l.table.SetNumber(nt.AutoSpeedKey, speed)
	defer func() {
		l.setRecording(false)
		l.table.SetNumber(nt.AutoSpeedKey, 0)
	}()

	ticker := time.NewTicker(l.cfg.RampInterval)
	defer ticker.Stop()

	var stop <-chan time.Time
	if l.cfg.AutoEnable {
		timer := time.NewTimer(l.cfg.Duration)
		defer timer.Stop()
		stop = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.lost:
			return nil, ErrDisconnected
		case data := <-l.runs:
			if l.disconnected() {
				return nil, ErrDisconnected
			}
			return data, nil
		case <-stop:
			l.setMode(characterize.ModeDisabled)
		case <-ticker.C:
			speed += test.Ramp
			l.table.SetNumber(nt.AutoSpeedKey, speed)
		}
	}
}

func (l *Logger) sanityCheck(data [][]float64) {
	if len(data) < 3 {
		l.cfg.Logf("WARNING: There wasn't a lot of data received during that last run")
		return
	}
	names := []string{"Left", "Right"}
	if l.cfg.Layout == characterize.LayoutArm {
		names = []string{"Arm"}
	}
	l.cfg.Logf("The robot reported traveling the following distance:")
	for i, d := range Distances(l.cfg.Layout, data) {
		l.cfg.Logf("%-6s %.3f", names[i]+":", d)
	}
	l.cfg.Logf("If that doesn't seem quite right, check the encoder calibration or the encoders.")
}

// Distances returns how far each position column moved over a run.
func Distances(layout characterize.Layout, data [][]float64) []float64 {
	cols := layout.PositionColumns()
	out := make([]float64, len(cols))
	if len(data) == 0 {
		return out
	}
	first, last := data[0], data[len(data)-1]
	for i, c := range cols {
		if c < len(first) && c < len(last) {
			out[i] = last[c] - first[c]
		}
	}
	return out
}

// String describes a test for prompts.
func (t Test) String() string {
	return fmt.Sprintf("%s (start %.2f, ramp %+.3f)", t.Name, t.InitialSpeed, t.Ramp)
}
