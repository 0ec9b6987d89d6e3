// Package sim simulates a characterization rig: DC motor mechanisms that
// respond to motor commands, with the encoders, gyro and battery read by the
// characterization loop.
package sim

import (
	"math"
	"sync"
	"time"
)

// step is the integration interval.
const step = time.Millisecond

// Model is the feedforward model of a mechanism, in volts per revolution of
// the encoder shaft: V = kS*sgn(v) + kV*v + kA*a.
type Model struct {
	KS, KV, KA float64
}

// Plant is one simulated mechanism. Time advances lazily from the clock
// whenever the plant is read or commanded.
type Plant struct {
	mu    sync.Mutex
	model Model
	now   func() time.Time
	last  time.Time

	pos, vel float64 // revolutions, revolutions per second
	brake    bool
	mirrored bool
	motors   []*Motor
}

// NewPlant creates a plant at rest. now defaults to time.Now.
func NewPlant(m Model, now func() time.Time) *Plant {
	if now == nil {
		now = time.Now
	}
	return &Plant{model: m, now: now, last: now()}
}

// Mirror reverses the direction the motors drive the plant, as on the far
// side of a drivetrain.
func (p *Plant) Mirror() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirrored = true
}

// State returns the position and velocity in revolutions.
func (p *Plant) State() (pos, vel float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sync()
	return p.pos, p.vel
}

// Voltage returns the mean voltage applied by the plant's motors.
func (p *Plant) Voltage() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input()
}

// Advance integrates the plant over d regardless of the clock.
func (p *Plant) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sync()
	p.integrate(d)
}

// sync brings the plant up to the clock. Callers hold mu.
func (p *Plant) sync() {
	now := p.now()
	if d := now.Sub(p.last); d > 0 {
		p.integrate(d)
	}
	p.last = now
}

func (p *Plant) integrate(d time.Duration) {
	for d > 0 {
		h := step
		if d < h {
			h = d
		}
		p.step(h.Seconds())
		d -= h
	}
}

// input is the applied voltage in the plant's direction. Callers hold mu.
func (p *Plant) input() float64 {
	if len(p.motors) == 0 {
		return 0
	}
	var sum float64
	for _, m := range p.motors {
		sum += m.applied()
	}
	v := sum / float64(len(p.motors))
	if p.mirrored {
		v = -v
	}
	return v
}

func (p *Plant) step(h float64) {
	v := p.input()
	m := p.model

	// Static friction holds a stopped mechanism.
	if p.vel == 0 && math.Abs(v) <= m.KS {
		return
	}

	dir := sign(p.vel)
	if dir == 0 {
		dir = sign(v)
	}

	var a float64
	if v == 0 && !p.brake {
		// Coasting: the open windings add no back-EMF drag.
		a = -m.KS * dir / m.KA
	} else {
		a = (v - m.KS*dir - m.KV*p.vel) / m.KA
	}

	next := p.vel + a*h
	if p.vel != 0 && sign(next) != sign(p.vel) && math.Abs(v) <= m.KS {
		next = 0
	}
	p.pos += (p.vel + next) / 2 * h
	p.vel = next
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
