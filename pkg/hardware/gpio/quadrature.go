package gpio

import (
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

const (
	// DefaultPollInterval is how often encoder inputs are sampled.
	DefaultPollInterval = 100 * time.Microsecond
	// DefaultRateWindow is the span velocity is averaged over.
	DefaultRateWindow = 20 * time.Millisecond
)

// transitions maps prev<<2|cur of the AB state to a count step. Moves that
// skip a state count nothing.
var transitions = [16]int8{0, -1, 1, 0, 1, 0, 0, -1, -1, 0, 0, 1, 0, 1, -1, 0}

// Decoder counts every edge of a quadrature signal (4x decoding).
type Decoder struct {
	mu      sync.Mutex
	state   uint8
	count   int64
	skipped int64

	window time.Duration
	lastT  time.Time
	lastC  int64
	rate   float64
}

// NewDecoder starts decoding from the current A and B levels.
func NewDecoder(a, b bool, window time.Duration, now time.Time) *Decoder {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &Decoder{state: abState(a, b), window: window, lastT: now}
}

func abState(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Update feeds one sample of the A and B levels.
func (d *Decoder) Update(a, b bool, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := abState(a, b)
	if cur != d.state {
		if cur^d.state == 3 {
			d.skipped++
		}
		d.count += int64(transitions[d.state<<2|cur])
		d.state = cur
	}

	if dt := now.Sub(d.lastT); dt >= d.window {
		d.rate = float64(d.count-d.lastC) / dt.Seconds()
		d.lastT = now
		d.lastC = d.count
	}
}

// Count returns the edge count since the last reset.
func (d *Decoder) Count() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float64(d.count), nil
}

// Velocity returns edges per second over the last full window.
func (d *Decoder) Velocity() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate, nil
}

func (d *Decoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastC -= d.count
	d.count = 0
	return nil
}

// Skipped returns the number of samples where both channels changed at
// once, meaning the poll rate is too slow for the shaft speed.
func (d *Decoder) Skipped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.skipped
}

// Quadrature is an encoder on two GPIO inputs, sampled by a goroutine.
type Quadrature struct {
	*Decoder
	a, b rpio.Pin

	done chan struct{}
	wg   sync.WaitGroup
}

// NewQuadrature configures the pins as pulled-up inputs and starts polling.
// rpio must be open.
func NewQuadrature(pinA, pinB int, poll time.Duration) *Quadrature {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	a, b := rpio.Pin(pinA), rpio.Pin(pinB)
	for _, p := range []rpio.Pin{a, b} {
		p.Input()
		p.PullUp()
	}

	q := &Quadrature{
		Decoder: NewDecoder(a.Read() == rpio.High, b.Read() == rpio.High, DefaultRateWindow, time.Now()),
		a:       a,
		b:       b,
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.poll(poll)
	return q
}

func (q *Quadrature) poll(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case now := <-ticker.C:
			q.Update(q.a.Read() == rpio.High, q.b.Read() == rpio.High, now)
		}
	}
}

// Close stops polling.
func (q *Quadrature) Close() error {
	close(q.done)
	q.wg.Wait()
	return nil
}
