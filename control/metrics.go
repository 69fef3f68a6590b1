// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for engine-level monitoring.
// Counters are lock-free after first registration; arbitrary values can be
// published with Set. A nil *MetricsRegistry is a valid no-op sink.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter and gauge names maintained by the agent and its sessions.
const (
	SessionsActive = "sessions_active"
	SessionsTotal  = "sessions_total"
	FramesIn       = "frames_in"
	FramesOut      = "frames_out"
	BytesIn        = "bytes_in"
	BytesOut       = "bytes_out"
	FramesDropped  = "frames_dropped"
	ReadErrors     = "read_errors"
	WriteErrors    = "write_errors"
	AcceptErrors   = "accept_errors"
	ProtocolErrors = "protocol_errors"
	DelegatePanics = "delegate_panics"
)

// MetricsRegistry holds counters and published values.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	metrics  map[string]any
	updated  atomic.Int64 // unix nanos
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*atomic.Int64),
		metrics:  make(map[string]any),
	}
}

func (mr *MetricsRegistry) counter(key string) *atomic.Int64 {
	mr.mu.RLock()
	c := mr.counters[key]
	mr.mu.RUnlock()
	if c != nil {
		return c
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c = mr.counters[key]; c == nil {
		c = new(atomic.Int64)
		mr.counters[key] = c
	}
	return c
}

// Add adjusts counter key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.counter(key).Add(delta)
	mr.updated.Store(time.Now().UnixNano())
}

// Inc is Add(key, 1).
func (mr *MetricsRegistry) Inc(key string) { mr.Add(key, 1) }

// Counter reads counter key.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if mr == nil {
		return 0
	}
	return mr.counter(key).Load()
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.mu.Unlock()
	mr.updated.Store(time.Now().UnixNano())
}

// Updated returns the time of the last change.
func (mr *MetricsRegistry) Updated() time.Time {
	if mr == nil {
		return time.Time{}
	}
	if ns := mr.updated.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// GetSnapshot returns the latest metrics; counters appear as int64.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	if mr == nil {
		return map[string]any{}
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics)+len(mr.counters))
	for k, v := range mr.metrics {
		out[k] = v
	}
	for k, c := range mr.counters {
		out[k] = c.Load()
	}
	return out
}
