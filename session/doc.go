// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection state machine of the agent engine.
//
// A Session owns one non-blocking socket and two readiness sources, a read
// source that stays on for the session's life and a write source that is
// resumed when outbound frames are queued and suspended once they drain.
// Every handler, delegate callback and state change runs on the session's
// serial queue, so a session never processes two events at once while
// different sessions proceed in parallel.
//
// Lifecycle: Active -> Closing -> Destroyed. Closing is entered on end of
// stream, a fatal read error, a protocol violation, idle timeout or Close.
// The delegate's Closed fires exactly once, both sources are cancelled, the
// socket is closed after both cancellations, and destruction runs as the
// last task on the queue. Write failures are logged but do not close the
// session.
package session
