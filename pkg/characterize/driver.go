package characterize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Robot is a program driven by the fixed-rate Driver.
type Robot interface {
	RobotInit() error
	RobotPeriodic() error

	DisabledInit() error
	DisabledPeriodic() error

	AutonomousInit() error
	AutonomousPeriodic() error

	TeleopInit() error
	TeleopPeriodic() error

	TestInit() error
	TestPeriodic() error
}

// telemetrySource is implemented by robots that publish telemetry.
type telemetrySource interface {
	Telemetry() []float64
}

// State is a snapshot taken after each tick.
type State struct {
	Mode      Mode
	Telemetry []float64
	Timestamp time.Time
	Error     error
}

// DriverConfig holds configuration for the driver.
type DriverConfig struct {
	Hz    int
	Modes ModeSource
	// Logs receives mode changes and tick errors. Created when nil.
	Logs LogChannel
}

// Driver calls a Robot's callbacks at a fixed rate, one tick at a time.
type Driver struct {
	robot Robot
	modes ModeSource
	hz    int

	mu          sync.Mutex
	running     bool
	initialized bool
	mode        Mode

	stateCh chan State
	logs    LogChannel
}

// NewDriver creates a driver. The default rate is 50 Hz.
func NewDriver(r Robot, cfg DriverConfig) *Driver {
	if cfg.Hz <= 0 {
		cfg.Hz = 50
	}
	if cfg.Modes == nil {
		cfg.Modes = FixedMode(ModeDisabled)
	}
	if cfg.Logs == nil {
		cfg.Logs = NewLogChannel(10)
	}
	return &Driver{
		robot:   r,
		modes:   cfg.Modes,
		hz:      cfg.Hz,
		stateCh: make(chan State, 1),
		logs:    cfg.Logs,
	}
}

// States returns a channel that receives state updates.
func (d *Driver) States() <-chan State {
	return d.stateCh
}

// Logs returns a channel that receives log messages.
func (d *Driver) Logs() <-chan string {
	return d.logs
}

// Hz returns the tick frequency.
func (d *Driver) Hz() int {
	return d.hz
}

// Mode returns the mode of the last tick.
func (d *Driver) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Init runs RobotInit once.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	if err := d.robot.RobotInit(); err != nil {
		return fmt.Errorf("robot init: %w", err)
	}
	d.initialized = true
	return nil
}

// Start runs the tick loop until ctx is cancelled, then disables the robot.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("already running")
	}
	d.running = true
	d.mu.Unlock()

	if err := d.Init(); err != nil {
		d.stop()
		return err
	}
	d.logs.Logf("Robot program started at %d Hz", d.hz)

	ticker := time.NewTicker(time.Second / time.Duration(d.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := d.Step(); err != nil {
				d.logs.Logf("Tick error: %v", err)
			}
		}
	}
}

// Step runs a single tick: the mode's init on a transition, the mode's
// periodic callback, then RobotPeriodic.
func (d *Driver) Step() error {
	if err := d.Init(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	mode := d.modes.Mode()
	if mode != d.mode {
		d.logs.Logf("Mode: %s -> %s", d.mode, mode)
		d.mode = mode
		if err := d.enter(mode); err != nil {
			errs = append(errs, fmt.Errorf("%s init: %w", mode, err))
		}
	}
	if err := d.periodic(mode); err != nil {
		errs = append(errs, fmt.Errorf("%s periodic: %w", mode, err))
	}
	if err := d.robot.RobotPeriodic(); err != nil {
		errs = append(errs, fmt.Errorf("robot periodic: %w", err))
	}

	err := errors.Join(errs...)
	s := State{Mode: mode, Timestamp: time.Now(), Error: err}
	if ts, ok := d.robot.(telemetrySource); ok && mode == ModeAutonomous {
		s.Telemetry = ts.Telemetry()
	}
	d.sendState(s)
	return err
}

func (d *Driver) enter(mode Mode) error {
	switch mode {
	case ModeAutonomous:
		return d.robot.AutonomousInit()
	case ModeTeleop:
		return d.robot.TeleopInit()
	case ModeTest:
		return d.robot.TestInit()
	default:
		return d.robot.DisabledInit()
	}
}

func (d *Driver) periodic(mode Mode) error {
	switch mode {
	case ModeAutonomous:
		return d.robot.AutonomousPeriodic()
	case ModeTeleop:
		return d.robot.TeleopPeriodic()
	case ModeTest:
		return d.robot.TestPeriodic()
	default:
		return d.robot.DisabledPeriodic()
	}
}

func (d *Driver) sendState(s State) {
	select {
	case d.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-d.stateCh:
		default:
		}
		d.stateCh <- s
	}
}

func (d *Driver) stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

func (d *Driver) shutdown() {
	d.stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized && d.mode != ModeDisabled {
		d.mode = ModeDisabled
		if err := d.robot.DisabledInit(); err != nil {
			d.logs.Logf("Warning: failed to disable robot: %v", err)
		}
	}
	d.logs.Logf("Robot program stopped")
}

// LogChannel carries timestamped log lines. Lines are dropped when full.
type LogChannel chan string

// NewLogChannel creates a channel buffering n lines.
func NewLogChannel(n int) LogChannel {
	return make(LogChannel, n)
}

// Logf formats and queues a line.
func (c LogChannel) Logf(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c <- msg:
	default:
		// Drop if channel full
	}
}
