// Package nt provides a small network-table style key/value pub/sub channel
// shared between the robot and the host tools.
package nt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// Well-known keys.
const (
	AutoSpeedKey    = "/robot/autospeed"
	TelemetryKey    = "/robot/telemetry"
	JoystickKey     = "/robot/joystick"
	ControlWordKey  = "/FMSInfo/FMSControlData"
	DashboardPrefix = "/SmartDashboard/"
)

// DefaultUpdateRate is the flush interval before SetUpdateRate is called.
const DefaultUpdateRate = 100 * time.Millisecond

// DashboardKey returns the key a human-readable dashboard value lives under.
func DashboardKey(name string) string {
	return DashboardPrefix + name
}

// Value is a number or a number array.
type Value struct {
	Number  float64
	Array   []float64
	IsArray bool
}

// NumberValue wraps a scalar.
func NumberValue(v float64) Value { return Value{Number: v} }

// ArrayValue wraps a copy of an array.
func ArrayValue(v []float64) Value {
	return Value{Array: append([]float64{}, v...), IsArray: true}
}

// MarshalJSON encodes a scalar as a JSON number and an array as a JSON array.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsArray {
		arr := v.Array
		if arr == nil {
			arr = []float64{}
		}
		return json.Marshal(arr)
	}
	return json.Marshal(v.Number)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		*v = Value{Array: arr, IsArray: true}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("value is neither a number nor a number array")
	}
	*v = Value{Number: n}
	return nil
}

// Listener is called with every change under the prefix it was registered for.
type Listener func(key string, v Value)

// Table is a shared key/value pub/sub store.
type Table interface {
	// Number returns the scalar at key, or def when absent or not a scalar.
	Number(key string, def float64) float64
	SetNumber(key string, v float64)
	// NumberArray returns a copy of the array at key, or nil.
	NumberArray(key string) []float64
	SetNumberArray(key string, v []float64)
	// SetUpdateRate sets how often local changes are flushed to peers.
	SetUpdateRate(d time.Duration)
	// AddListener registers fn for every key starting with prefix, both
	// for local and remote changes.
	AddListener(prefix string, fn Listener)
	Close() error
}

type listener struct {
	prefix string
	fn     Listener
}

// store is the cache shared by the table implementations.
type store struct {
	mu        sync.RWMutex
	values    map[string]Value
	listeners []listener
}

func (s *store) init() {
	s.values = make(map[string]Value)
}

func (s *store) Number(key string, def float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok || v.IsArray {
		return def
	}
	return v.Number
}

func (s *store) NumberArray(key string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok || !v.IsArray {
		return nil
	}
	return append([]float64{}, v.Array...)
}

// put stores v and notifies listeners outside the lock.
func (s *store) put(key string, v Value) {
	s.mu.Lock()
	s.values[key] = v
	var fns []Listener
	for _, l := range s.listeners {
		if strings.HasPrefix(key, l.prefix) {
			fns = append(fns, l.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key, v)
	}
}

func (s *store) AddListener(prefix string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener{prefix: prefix, fn: fn})
}

// Snapshot returns a copy of every value.
func (s *store) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MemTable is an in-process table. Listeners run synchronously on the
// writer's goroutine.
type MemTable struct {
	store

	rateMu sync.Mutex
	rate   time.Duration
}

// NewMemTable creates an empty table.
func NewMemTable() *MemTable {
	t := &MemTable{rate: DefaultUpdateRate}
	t.init()
	return t
}

func (t *MemTable) SetNumber(key string, v float64) {
	t.put(key, NumberValue(v))
}

func (t *MemTable) SetNumberArray(key string, v []float64) {
	t.put(key, ArrayValue(v))
}

func (t *MemTable) SetUpdateRate(d time.Duration) {
	t.rateMu.Lock()
	defer t.rateMu.Unlock()
	t.rate = d
}

// UpdateRate returns the last rate set.
func (t *MemTable) UpdateRate() time.Duration {
	t.rateMu.Lock()
	defer t.rateMu.Unlock()
	return t.rate
}

func (t *MemTable) Close() error { return nil }

// Snapshotter is implemented by tables that can list their contents.
type Snapshotter interface {
	Snapshot() map[string]Value
}

// ConnectionNotifier is implemented by tables linked to remote peers.
type ConnectionNotifier interface {
	AddConnectionListener(fn func(connected bool))
}
