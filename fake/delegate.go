// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording delegate and tap.

package fake

import (
	"sync"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/protocol"
)

// Delegate event names.
const (
	EventConnected = "connected"
	EventReceived  = "received"
	EventSent      = "sent"
	EventClosed    = "closed"
)

// Delegate records every callback. Unless Manual is set, DataReceived
// consumes the frame with ReadData and keeps the payload.
type Delegate struct {
	ID     uint32
	Manual bool

	// OnReceived, if set, runs after the frame was recorded.
	OnReceived func(s api.Session, payload []byte)

	mu       sync.Mutex
	events   []string
	received [][]byte
	notify   chan string
}

// NewDelegate creates a delegate for agent id.
func NewDelegate(id uint32) *Delegate {
	return &Delegate{ID: id, notify: make(chan string, 1024)}
}

func (d *Delegate) AgentID() uint32 { return d.ID }

func (d *Delegate) Connected(s api.Session) { d.record(EventConnected, nil) }
func (d *Delegate) DataSent(s api.Session)  { d.record(EventSent, nil) }
func (d *Delegate) Closed(s api.Session)    { d.record(EventClosed, nil) }

func (d *Delegate) DataReceived(s api.Session) {
	var payload []byte
	if !d.Manual {
		payload = s.ReadData()
	}
	d.record(EventReceived, payload)
	if d.OnReceived != nil {
		d.OnReceived(s, payload)
	}
}

func (d *Delegate) record(ev string, payload []byte) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	if ev == EventReceived && payload != nil {
		d.received = append(d.received, payload)
	}
	d.mu.Unlock()
	select {
	case d.notify <- ev:
	default:
	}
}

// Notify delivers event names as they are recorded.
func (d *Delegate) Notify() <-chan string { return d.notify }

// Count returns how many times ev was recorded.
func (d *Delegate) Count(ev string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e == ev {
			n++
		}
	}
	return n
}

// Events returns the recorded event sequence.
func (d *Delegate) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Received returns the consumed payloads in arrival order.
func (d *Delegate) Received() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.received...)
}

// Dispatcher is a fixed lookup table; it counts searches.
type Dispatcher struct {
	mu       sync.Mutex
	agents   map[uint32]api.Delegate
	searches int
}

// NewDispatcher registers delegates by their AgentID.
func NewDispatcher(ds ...api.Delegate) *Dispatcher {
	m := &Dispatcher{agents: make(map[uint32]api.Delegate)}
	for _, d := range ds {
		m.agents[d.AgentID()] = d
	}
	return m
}

func (m *Dispatcher) Search(id uint32) (api.Delegate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	d, ok := m.agents[id]
	return d, ok
}

// Set replaces the delegate for its id.
func (m *Dispatcher) Set(d api.Delegate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[d.AgentID()] = d
}

// Searches returns the number of Search calls.
func (m *Dispatcher) Searches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searches
}

// TapRecord is one observed frame.
type TapRecord struct {
	Session uint32
	Dir     protocol.Direction
	Header  protocol.Header
	Payload []byte
}

// Tap collects every frame it is shown.
type Tap struct {
	mu      sync.Mutex
	records []TapRecord
}

func (t *Tap) Record(sessionID uint32, dir protocol.Direction, h protocol.Header, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, TapRecord{sessionID, dir, h, append([]byte(nil), payload...)})
}

// Records returns a copy of the collected records.
func (t *Tap) Records() []TapRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TapRecord(nil), t.records...)
}
