package nt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig locates the broker carrying the table.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTTTable mirrors the table over an MQTT broker. Every key is a topic
// carrying a JSON number or array. Local writes are buffered and published
// once per update interval.
//
// Data keys are retained so late subscribers see the last value. Command
// keys (see Volatile) are not: a retained command from an earlier session
// is ignored, so a robot always starts disabled and stopped.
//
// The broker echoes our own publishes back. Echoes are recognised by
// payload and dropped; any other message for a key is applied, whoever
// wrote it last.
type MQTTTable struct {
	store

	client mqtt.Client
	qos    byte

	pending  map[string]Value
	inflight map[string][]string
	conns    []func(connected bool)
	rateCh   chan time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// maxInflight bounds the echoes remembered per key, for echoes lost in a
// reconnect.
const maxInflight = 32

// Volatile reports whether key carries a command that must not outlive the
// session that wrote it.
func Volatile(key string) bool {
	switch key {
	case ControlWordKey, AutoSpeedKey, JoystickKey:
		return true
	}
	return false
}

func newMQTTTable(qos byte) *MQTTTable {
	t := &MQTTTable{
		qos:      qos,
		pending:  make(map[string]Value),
		inflight: make(map[string][]string),
		rateCh:   make(chan time.Duration, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	t.init()
	return t
}

// DialMQTT connects to the broker and starts the flush loop.
func DialMQTT(cfg MQTTConfig) (*MQTTTable, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("characterize-%d", time.Now().UnixNano())
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	t := newMQTTTable(cfg.QoS)
	t.client = mqtt.NewClient(t.clientOptions(cfg))
	token := t.client.Connect()
	if token.WaitTimeout(cfg.ConnectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, token.Error())
	}

	go t.flushLoop()
	return t, nil
}

// clientOptions keeps paho's in-order delivery: handlers run one at a time
// in arrival order, so they must not block.
func (t *MQTTTable) clientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(true)
	opts.OnConnect = t.onConnect
	opts.OnConnectionLost = t.onConnectionLost
	return opts
}

// onConnect subscribes to every topic. It runs again after a reconnect.
func (t *MQTTTable) onConnect(c mqtt.Client) {
	log.Printf("nt: connected")
	token := c.Subscribe("#", t.qos, t.onMessage)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("nt: subscribe: %v", token.Error())
		}
	}()
	t.notifyConnection(true)
}

func (t *MQTTTable) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("nt: connection lost: %v", err)
	t.notifyConnection(false)
}

// AddConnectionListener registers fn for every connect and disconnect.
func (t *MQTTTable) AddConnectionListener(fn func(connected bool)) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.conns = append(t.conns, fn)
}

func (t *MQTTTable) notifyConnection(connected bool) {
	t.store.mu.RLock()
	fns := append([]func(bool){}, t.conns...)
	t.store.mu.RUnlock()
	for _, fn := range fns {
		fn(connected)
	}
}

func (t *MQTTTable) onMessage(_ mqtt.Client, msg mqtt.Message) {
	key := msg.Topic()
	if msg.Retained() && Volatile(key) {
		return
	}

	payload := string(msg.Payload())
	t.store.mu.Lock()
	echo := t.takeEcho(key, payload)
	t.store.mu.Unlock()
	if echo {
		return
	}

	var v Value
	if err := json.Unmarshal(msg.Payload(), &v); err != nil {
		// Topics that are not ours may share the broker.
		return
	}
	t.put(key, v)
}

// takeEcho reports whether payload is one we published on key. Echoes
// arrive in publish order, so older ones still queued were lost.
func (t *MQTTTable) takeEcho(key, payload string) bool {
	q := t.inflight[key]
	for i, p := range q {
		if p == payload {
			if i == len(q)-1 {
				delete(t.inflight, key)
			} else {
				t.inflight[key] = q[i+1:]
			}
			return true
		}
	}
	return false
}

func (t *MQTTTable) set(key string, v Value) {
	t.store.mu.Lock()
	t.pending[key] = v
	t.store.mu.Unlock()
	t.put(key, v)
}

func (t *MQTTTable) SetNumber(key string, v float64) {
	t.set(key, NumberValue(v))
}

func (t *MQTTTable) SetNumberArray(key string, v []float64) {
	t.set(key, ArrayValue(v))
}

func (t *MQTTTable) SetUpdateRate(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-t.rateCh:
	default:
	}
	t.rateCh <- d
}

func (t *MQTTTable) flushLoop() {
	defer close(t.stopped)

	ticker := time.NewTicker(DefaultUpdateRate)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			t.Flush()
			return
		case d := <-t.rateCh:
			ticker.Reset(d)
		case <-ticker.C:
			t.Flush()
		}
	}
}

// Flush publishes every pending local change now.
func (t *MQTTTable) Flush() {
	t.store.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]Value, len(pending))
	t.store.mu.Unlock()

	for key, v := range pending {
		payload, err := json.Marshal(v)
		if err != nil {
			log.Printf("nt: encode %s: %v", key, err)
			continue
		}

		t.store.mu.Lock()
		q := append(t.inflight[key], string(payload))
		if len(q) > maxInflight {
			q = q[len(q)-maxInflight:]
		}
		t.inflight[key] = q
		t.store.mu.Unlock()

		t.client.Publish(key, t.qos, !Volatile(key), payload)
	}
}

// Close flushes pending changes and disconnects.
func (t *MQTTTable) Close() error {
	select {
	case <-t.done:
		return nil
	default:
	}
	close(t.done)
	<-t.stopped
	t.client.Disconnect(250)
	return nil
}
