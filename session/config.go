// File: session/config.go
// Author: momentics <momentics@gmail.com>
//
// Session collaborators and tunables.

package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/core/concurrency"
	"github.com/momentics/agentwire/pool"
	"github.com/momentics/agentwire/protocol"
)

// Socket is the non-blocking connection a session drives. Read returns
// (0, nil) at end of stream and iox.ErrWouldBlock when nothing is ready.
type Socket interface {
	FD() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Available() int
	RemoteAddr() string
	Close() error
}

// Tap observes complete frames in both directions. Record runs on the
// session's queue and must not retain payload.
type Tap interface {
	Record(sessionID uint32, dir protocol.Direction, h protocol.Header, payload []byte)
}

// WritePolicy decides what WriteData does while earlier frames are pending.
type WritePolicy int

const (
	// WriteQueue keeps every frame, in order, up to MaxPendingWrites.
	WriteQueue WritePolicy = iota
	// WriteOverwrite keeps only the newest frame not yet started.
	WriteOverwrite
)

func (p WritePolicy) String() string {
	switch p {
	case WriteQueue:
		return "queue"
	case WriteOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("WritePolicy(%d)", int(p))
	}
}

// ParseWritePolicy parses "queue" or "overwrite".
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch s {
	case "", "queue":
		return WriteQueue, nil
	case "overwrite":
		return WriteOverwrite, nil
	}
	return 0, fmt.Errorf("unknown write policy %q", s)
}

// Defaults.
const (
	DefaultReadBufferSize   = 64 << 10
	DefaultMaxPendingWrites = 1024
)

// Config wires a session to its collaborators. Zero values pick defaults;
// Dispatcher and Delegate may be nil.
type Config struct {
	Dispatcher api.Dispatcher
	Delegate   api.Delegate

	// Target runs the session queue; nil means one goroutine per drain.
	Target  concurrency.Target
	Logger  *slog.Logger
	Metrics *control.MetricsRegistry
	Tap     Tap
	Pool    *pool.BytePool

	ReadBufferSize   int
	MaxPayload       uint32
	MaxPendingWrites int
	WritePolicy      WritePolicy

	// IdleTimeout closes the session after this long without traffic; 0
	// disables it.
	IdleTimeout time.Duration

	// OnDestroy runs on the session queue as the last step of teardown.
	OnDestroy func(*Session)
}

func (c *Config) setDefaults() {
	if c.Target == nil {
		c.Target = concurrency.GoTarget{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Pool == nil {
		c.Pool = pool.Default
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.ReadBufferSize > c.Pool.MaxSize() {
		c.ReadBufferSize = c.Pool.MaxSize()
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = protocol.DefaultMaxPayload
	}
	if c.MaxPendingWrites <= 0 {
		c.MaxPendingWrites = DefaultMaxPendingWrites
	}
}
