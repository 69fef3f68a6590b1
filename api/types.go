// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: the routing capability pair and the
// session surface a delegate sees.

package api

import "github.com/momentics/agentwire/protocol"

// SessionState enumerates the lifecycle of a session.
type SessionState int

const (
	SessionActive SessionState = iota
	SessionClosing
	SessionDestroyed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Delegate is a logical agent bound to a session. All callbacks run on
// the session's serialized execution context, never concurrently with
// each other or with the session's I/O handlers.
type Delegate interface {
	// AgentID identifies the agent; frames whose target differs cause
	// the session to re-resolve its delegate.
	AgentID() uint32

	// Connected fires once for client-side sessions after connect.
	Connected(s Session)

	// DataReceived fires when a complete frame addressed to this agent
	// is buffered. Consume it with s.ReadData or s.ReadFrame before the
	// next frame's bytes arrive, otherwise it is discarded.
	DataReceived(s Session)

	// DataSent fires after an outbound frame has been fully written.
	DataSent(s Session)

	// Closed fires exactly once when the session begins teardown.
	Closed(s Session)
}

// Dispatcher resolves a target agent id to its delegate. Implementations
// must be safe for concurrent lookups from many sessions.
type Dispatcher interface {
	Search(targetAgentID uint32) (Delegate, bool)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(targetAgentID uint32) (Delegate, bool)

// Search calls f.
func (f DispatcherFunc) Search(targetAgentID uint32) (Delegate, bool) {
	return f(targetAgentID)
}

// Session is the per-connection surface exposed to delegates and callers.
type Session interface {
	ID() uint32
	Label() string
	RemoteAddr() string
	State() SessionState

	// ReadData returns the buffered inbound payload and clears it.
	ReadData() []byte

	// ReadFrame is ReadData plus the header the payload arrived with.
	ReadFrame() (protocol.Header, []byte)

	// WriteData queues one outbound frame.
	WriteData(sourceAgentID, targetAgentID uint32, payload []byte) error

	// SetDelegate and SetDispatcher apply asynchronously on the
	// session's execution context.
	SetDelegate(d Delegate)
	SetDispatcher(d Dispatcher)

	// Close starts an orderly local teardown.
	Close()
}
