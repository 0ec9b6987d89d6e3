package sim

import (
	"math"
	"sync"
)

// Battery is a supply whose voltage drops linearly with the total commanded
// output of the motors it powers.
type Battery struct {
	Nominal float64
	// Sag is the drop in volts per motor at full output.
	Sag float64

	mu    sync.Mutex
	loads map[*Motor]float64
}

func NewBattery(nominal, sag float64) *Battery {
	return &Battery{Nominal: nominal, Sag: sag, loads: make(map[*Motor]float64)}
}

func (b *Battery) setLoad(m *Motor, speed float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads[m] = math.Abs(speed)
}

// Voltage returns the loaded battery voltage. It never fails.
func (b *Battery) Voltage() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var load float64
	for _, l := range b.loads {
		load += l
	}
	return math.Max(0, b.Nominal-b.Sag*load)
}

// Sense adapts the battery to robot.Battery.
type Sense struct {
	*Battery
}

func (s Sense) Voltage() (float64, error) {
	return s.Battery.Voltage(), nil
}

// Encoder counts pulses on a plant's shaft.
type Encoder struct {
	plant *Plant
	// PulsesPerRev is the raw resolution.
	PulsesPerRev float64
	// VelocityScale divides the reported velocity, as controllers that report
	// counts per 100ms do.
	VelocityScale float64
	// Reversed flips the raw count, for an encoder mounted facing backwards.
	Reversed bool

	mu   sync.Mutex
	zero float64
}

func NewEncoder(p *Plant, ppr float64) *Encoder {
	return &Encoder{plant: p, PulsesPerRev: ppr, VelocityScale: 1}
}

func (e *Encoder) dir() float64 {
	if e.Reversed {
		return -1
	}
	return 1
}

func (e *Encoder) Count() (float64, error) {
	pos, _ := e.plant.State()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir() * (pos - e.zero) * e.PulsesPerRev, nil
}

func (e *Encoder) Velocity() (float64, error) {
	_, vel := e.plant.State()
	scale := e.VelocityScale
	if scale == 0 {
		scale = 1
	}
	return e.dir() * vel * e.PulsesPerRev / scale, nil
}

func (e *Encoder) Reset() error {
	pos, _ := e.plant.State()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zero = pos
	return nil
}

// Gyro derives a drivetrain's heading from the wheel travel of both sides.
// Counter-clockwise is positive.
type Gyro struct {
	Left, Right *Plant
	// WheelDiameter and TrackWidth share one length unit.
	WheelDiameter float64
	TrackWidth    float64
}

func (g Gyro) HeadingRadians() (float64, error) {
	if g.TrackWidth == 0 {
		return 0, nil
	}
	l, _ := g.Left.State()
	r, _ := g.Right.State()
	circ := math.Pi * g.WheelDiameter
	return (r - l) * circ / g.TrackWidth, nil
}
