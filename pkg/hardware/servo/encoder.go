// Package servo uses a Feetech serial bus servo, with torque off, as an
// absolute shaft encoder.
package servo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

const (
	// DefaultResolution is the step count per turn of STS servos.
	DefaultResolution = 4096
	readTimeout       = 100 * time.Millisecond
)

// Unwrapper turns the servo's single-turn position into a continuous count.
// Steps between reads must stay under half a turn.
type Unwrapper struct {
	Resolution float64

	started bool
	last    float64
	total   float64
}

// Update feeds a raw position and returns the unwrapped count.
func (u *Unwrapper) Update(raw float64) float64 {
	if !u.started {
		u.started = true
		u.last = raw
		return u.total
	}
	delta := raw - u.last
	half := u.Resolution / 2
	switch {
	case delta > half:
		delta -= u.Resolution
	case delta < -half:
		delta += u.Resolution
	}
	u.total += delta
	u.last = raw
	return u.total
}

// RateWindow is the minimum span between velocity samples.
const RateWindow = 20 * time.Millisecond

// Encoder reads a servo's position as a count in steps.
type Encoder struct {
	bus   *feetech.Bus
	servo *feetech.Servo

	mu     sync.Mutex
	now    func() time.Time
	unwrap Unwrapper
	zero   float64
	count  float64
	lastT  time.Time
	lastC  float64
	rate   float64
}

// Open connects to the servo with the given ID and disables its torque so
// the shaft turns freely.
func Open(port string, id int) (*Encoder, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	found, err := bus.Scan(ctx, id, id)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan for servo %d: %w", id, err)
	}
	if len(found) == 0 {
		bus.Close()
		return nil, fmt.Errorf("servo %d not found on %s", id, port)
	}

	resolution := float64(DefaultResolution)
	if m := found[0].Model; m != nil && m.Resolution > 0 {
		resolution = float64(m.Resolution)
	}

	s := feetech.NewServo(bus, found[0].ID, found[0].Model)
	if err := s.Disable(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("disable torque: %w", err)
	}

	e := &Encoder{
		bus:    bus,
		servo:  s,
		now:    time.Now,
		unwrap: Unwrapper{Resolution: resolution},
	}
	if _, err := e.read(); err != nil {
		bus.Close()
		return nil, err
	}
	return e, nil
}

// read samples the servo and updates the count and rate.
func (e *Encoder) read() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	pos, err := e.servo.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.observe(float64(pos), e.now())
	return e.count, nil
}

// observe records one raw sample. Callers hold mu.
func (e *Encoder) observe(raw float64, now time.Time) {
	e.count = e.unwrap.Update(raw) - e.zero
	if e.lastT.IsZero() {
		e.lastT, e.lastC = now, e.count
		return
	}
	if dt := now.Sub(e.lastT); dt >= RateWindow {
		e.rate = (e.count - e.lastC) / dt.Seconds()
		e.lastT, e.lastC = now, e.count
	}
}

// Count returns the steps turned since the last reset.
func (e *Encoder) Count() (float64, error) {
	return e.read()
}

// Velocity returns steps per second from the most recent samples.
func (e *Encoder) Velocity() (float64, error) {
	if _, err := e.read(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate, nil
}

func (e *Encoder) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zero += e.count
	e.lastC -= e.count
	e.count = 0
	return nil
}

func (e *Encoder) Close() error {
	return e.bus.Close()
}

// Scan lists the servos answering on a port, for setup.
func Scan(ctx context.Context, port string, maxID int) ([]feetech.FoundServo, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  readTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer bus.Close()
	return bus.Scan(ctx, 1, maxID)
}
