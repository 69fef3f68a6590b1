// File: session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Session state, delegate binding and teardown.

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/core/concurrency"
	"github.com/momentics/agentwire/protocol"
	"github.com/momentics/agentwire/reactor"
)

// Session is one framed connection. Fields marked queue-owned are touched
// only from tasks on the session's serial queue.
type Session struct {
	id    uint32
	label string
	sock  Socket
	cfg   Config
	log   *slog.Logger
	queue *concurrency.SerialQueue

	readSrc  reactor.Source
	writeSrc reactor.Source

	// queue-owned
	delegate    api.Delegate
	dispatcher  api.Dispatcher
	writeActive bool
	wframe      *protocol.Frame
	wbuf        []byte
	woff        int
	outq        *queue.Queue
	cancelled   int
	idle        *time.Timer

	// mu guards the read assembler; it is released around delegate callbacks.
	mu  sync.Mutex
	asm *protocol.Assembler

	state        atomic.Int32
	pending      atomic.Int32
	lastActivity atomic.Int64
	done         chan struct{}
}

var _ api.Session = (*Session)(nil)

// New builds a session around sock and registers its read and write
// sources with r. Both sources start suspended; call Start to begin
// reading. On error sock is closed.
func New(id uint32, sock Socket, r reactor.Reactor, cfg Config) (*Session, error) {
	cfg.setDefaults()
	label := fmt.Sprintf("session.%d#%d", id, sock.FD())
	s := &Session{
		id:         id,
		label:      label,
		sock:       sock,
		cfg:        cfg,
		log:        cfg.Logger.With("session", label),
		queue:      concurrency.NewSerialQueue(label, cfg.Target),
		delegate:   cfg.Delegate,
		dispatcher: cfg.Dispatcher,
		outq:       queue.New(),
		asm:        protocol.NewAssembler(cfg.MaxPayload),
		done:       make(chan struct{}),
	}
	s.queue.SetPanicHandler(func(p any) {
		s.log.Error("session task panic", "panic", p)
	})

	var err error
	s.readSrc, err = r.Watch(sock.FD(), reactor.Read, s.queue, s.handleRead, s.sourceCancelled)
	if err != nil {
		sock.Close()
		return nil, api.NewError(api.KindSocketSetup, "watch read", err).WithAddr(sock.RemoteAddr())
	}
	s.writeSrc, err = r.Watch(sock.FD(), reactor.Write, s.queue, s.handleWrite, s.sourceCancelled)
	if err != nil {
		s.readSrc.Cancel()
		sock.Close()
		return nil, api.NewError(api.KindSocketSetup, "watch write", err).WithAddr(sock.RemoteAddr())
	}
	return s, nil
}

// Start enables the read source and the idle timer.
func (s *Session) Start() {
	s.cfg.Metrics.Inc(control.SessionsTotal)
	s.cfg.Metrics.Inc(control.SessionsActive)
	s.touch()
	if t := s.cfg.IdleTimeout; t > 0 {
		// s.idle is only touched on the session queue.
		s.queue.Async(func() {
			if s.State() == api.SessionActive {
				s.idle = time.AfterFunc(t, func() { s.queue.Async(s.checkIdle) })
			}
		})
	}
	s.readSrc.Resume()
	s.log.Debug("session started", "remote", s.sock.RemoteAddr())
}

// NotifyConnected fires Connected on the bound delegate, on the session queue.
func (s *Session) NotifyConnected() {
	s.queue.Async(func() {
		if d := s.delegate; d != nil && s.State() == api.SessionActive {
			s.notify("connected", d.Connected)
		}
	})
}

func (s *Session) ID() uint32         { return s.id }
func (s *Session) Label() string      { return s.label }
func (s *Session) RemoteAddr() string { return s.sock.RemoteAddr() }

// State returns the lifecycle state.
func (s *Session) State() api.SessionState {
	return api.SessionState(s.state.Load())
}

// Pending returns the number of accepted but not yet written frames.
func (s *Session) Pending() int { return int(s.pending.Load()) }

// Done is closed once the session is destroyed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Flush waits until every task queued before the call has run. It must
// not be called from a delegate callback.
func (s *Session) Flush() { s.queue.Sync(func() {}) }

// SetDelegate binds d on the session queue.
func (s *Session) SetDelegate(d api.Delegate) {
	s.queue.Async(func() { s.delegate = d })
}

// SetDispatcher replaces the dispatcher on the session queue.
func (s *Session) SetDispatcher(d api.Dispatcher) {
	s.queue.Async(func() { s.dispatcher = d })
}

// Close starts an orderly local teardown.
func (s *Session) Close() {
	s.queue.Async(func() { s.shutdown("local close", nil) })
}

// route rebinds the delegate when the frame target differs from it.
// Without a dispatcher the bound delegate is kept; a failed lookup leaves
// the session without one.
func (s *Session) route(target uint32) {
	if d := s.delegate; d != nil && d.AgentID() == target {
		return
	}
	if s.dispatcher == nil {
		return
	}
	var next api.Delegate
	if d, ok := s.dispatcher.Search(target); ok {
		next = d
	}
	if next == nil {
		s.log.Debug("no agent for target", "target", target)
	}
	s.delegate = next
}

// notify runs a delegate callback, containing any panic it raises.
func (s *Session) notify(event string, fn func(api.Session)) {
	defer func() {
		if p := recover(); p != nil {
			s.cfg.Metrics.Inc(control.DelegatePanics)
			s.log.Error("delegate callback panic", "event", event, "panic", p)
		}
	}()
	fn(s)
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) checkIdle() {
	if s.State() != api.SessionActive {
		return
	}
	since := time.Since(time.Unix(0, s.lastActivity.Load()))
	if since >= s.cfg.IdleTimeout {
		s.shutdown("idle timeout", nil)
		return
	}
	s.idle.Reset(s.cfg.IdleTimeout - since)
}

// shutdown moves Active to Closing: Closed fires once, both sources are
// cancelled and destruction is queued behind every pending event.
func (s *Session) shutdown(reason string, err error) {
	if !s.state.CompareAndSwap(int32(api.SessionActive), int32(api.SessionClosing)) {
		return
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	if err != nil {
		s.log.Error("session closing", "reason", reason, "err", err)
	} else {
		s.log.Info("session closing", "reason", reason)
	}
	if d := s.delegate; d != nil {
		s.notify("closed", d.Closed)
	}
	if !s.writeActive {
		s.writeSrc.Resume()
		s.writeActive = true
	}
	s.readSrc.Cancel()
	s.writeSrc.Cancel()
	s.queue.Async(s.destroy)
}

// sourceCancelled is the cancel handler of both sources; the second one
// closes the socket.
func (s *Session) sourceCancelled() {
	s.cancelled++
	if s.cancelled == 2 {
		if err := s.sock.Close(); err != nil {
			s.log.Debug("socket close", "err", err)
		}
	}
}

func (s *Session) destroy() {
	if s.cancelled < 2 {
		s.sock.Close()
	}
	dropped := s.outq.Length()
	for s.outq.Length() > 0 {
		s.outq.Remove()
	}
	if s.wbuf != nil {
		dropped++
		s.wbuf, s.wframe = nil, nil
	}
	if dropped > 0 {
		s.cfg.Metrics.Add(control.FramesDropped, int64(dropped))
		s.log.Warn("unsent frames discarded", "count", dropped)
	}
	s.pending.Store(0)

	s.mu.Lock()
	s.asm.Reset()
	s.mu.Unlock()

	s.delegate, s.dispatcher = nil, nil
	s.state.Store(int32(api.SessionDestroyed))
	s.cfg.Metrics.Add(control.SessionsActive, -1)
	if s.cfg.OnDestroy != nil {
		s.cfg.OnDestroy(s)
	}
	close(s.done)
	s.log.Debug("session destroyed")
}

// classify maps a read-side failure to the engine's error taxonomy.
func classify(op string, err error) *api.Error {
	switch {
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return api.NewError(api.KindAllocation, op, err)
	case errors.Is(err, protocol.ErrBadTag):
		return api.NewError(api.KindProtocol, op, err)
	default:
		return api.NewError(api.KindIO, op, err)
	}
}
