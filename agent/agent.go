// File: agent/agent.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Agent: listener and connector front end that turns sockets into sessions.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"github.com/google/uuid"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/core/concurrency"
	"github.com/momentics/agentwire/internal/conntrack"
	"github.com/momentics/agentwire/internal/transport"
	"github.com/momentics/agentwire/pool"
	"github.com/momentics/agentwire/reactor"
	"github.com/momentics/agentwire/session"
)

// Mode selects whether an agent accepts or initiates connections.
type Mode int

const (
	Server Mode = iota
	Client
)

func (m Mode) String() string {
	switch m {
	case Server:
		return "server"
	case Client:
		return "client"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "server" or "client".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "server":
		return Server, nil
	case "client":
		return Client, nil
	}
	return 0, fmt.Errorf("unknown agent mode %q", s)
}

var (
	ErrAgentClosed = errors.New("agent is closed")
	ErrAgentExists = errors.New("agent id already registered")
)

type listener struct {
	fd   int
	addr netip.AddrPort
	src  reactor.Source
}

// Agent owns a reactor, the listening sockets of a server and every
// session it has created.
type Agent struct {
	id         string
	mode       Mode
	dispatcher api.Dispatcher
	opts       options
	log        *slog.Logger

	r          reactor.Reactor
	ownReactor bool
	runDone    chan struct{}
	exec       *concurrency.Executor
	target     concurrency.Target

	// queue serializes accept handling and listener teardown.
	queue *concurrency.SerialQueue

	mu        sync.Mutex
	listeners []*listener

	sessions *conntrack.Set[*session.Session]
	ids      atomix.Uint32
	closed   atomic.Bool

	resolve func(ctx context.Context, network, host, service string, passive bool) ([]netip.AddrPort, error)
}

// New creates an agent. dispatcher resolves target agent ids for every
// session the agent creates and may be nil.
func New(mode Mode, dispatcher api.Dispatcher, opts ...Option) (*Agent, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a := &Agent{
		id:         uuid.New().String(),
		mode:       mode,
		dispatcher: dispatcher,
		opts:       o,
		sessions:   conntrack.New[*session.Session](0),
		target:     concurrency.GoTarget{},
		resolve:    transport.Resolve,
	}
	a.log = o.logger.With("agent", a.id, "mode", mode.String())

	a.r = o.reactor
	if a.r == nil {
		r, err := reactor.New(reactor.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		a.r, a.ownReactor = r, true
		a.runDone = make(chan struct{})
		go func() {
			defer close(a.runDone)
			if err := r.Run(); err != nil && !errors.Is(err, reactor.ErrClosed) {
				a.log.Error("reactor stopped", "err", err)
			}
		}()
	}

	if o.workers > 0 {
		var eopts []concurrency.ExecutorOption
		if o.pinWorkers {
			eopts = append(eopts, concurrency.WithPinnedWorkers())
		}
		a.exec = concurrency.NewExecutor(o.workers, 0, eopts...)
		a.exec.PanicHandler = func(v any) {
			a.log.Error("task panic", "panic", v)
		}
		a.target = a.exec
	}
	a.queue = concurrency.NewSerialQueue("agent."+mode.String(), a.target)
	a.queue.SetPanicHandler(func(v any) {
		a.log.Error("listener task panic", "panic", v)
	})
	return a, nil
}

// ID returns the agent's instance id.
func (a *Agent) ID() string { return a.id }

// Mode returns the agent's mode.
func (a *Agent) Mode() Mode { return a.mode }

// Listen binds every address host and service resolve to and starts
// accepting. It does nothing on a client agent. An empty host listens on
// the wildcard address; service "0" picks an ephemeral port on the first
// socket, and every further socket of the call binds the same port.
func (a *Agent) Listen(ctx context.Context, host, service string) error {
	if a.mode != Server {
		return nil
	}
	if a.closed.Load() {
		return ErrAgentClosed
	}
	eps, err := a.resolve(ctx, a.opts.network, host, service, true)
	if err != nil {
		return err
	}

	opened := make([]*listener, 0, len(eps))
	abort := func() {
		for _, l := range opened {
			if l.src != nil {
				l.src.Cancel()
			} else {
				_ = transport.CloseFD(l.fd)
			}
		}
	}
	var port uint16
	for _, ep := range eps {
		if ep.Port() == 0 && port != 0 {
			ep = netip.AddrPortFrom(ep.Addr(), port)
		}
		fd, err := transport.Listen(ep, a.opts.backlog)
		if err != nil {
			abort()
			return err
		}
		l := &listener{fd: fd, addr: ep}
		if bound, err := transport.LocalAddr(fd); err == nil {
			l.addr = bound
		}
		port = l.addr.Port()
		opened = append(opened, l)
		l.src, err = a.r.Watch(fd, reactor.Read, a.queue,
			func(int) { a.accept(fd) },
			func() { _ = transport.CloseFD(fd) })
		if err != nil {
			abort()
			return api.NewError(api.KindSocketSetup, "watch", err).WithAddr(ep.String())
		}
	}

	a.mu.Lock()
	a.listeners = append(a.listeners, opened...)
	a.mu.Unlock()
	for _, l := range opened {
		l.src.Resume()
		a.log.Info("listening", "addr", l.addr.String())
	}
	return nil
}

// accept drains the listener's backlog. It runs on the agent queue, one
// accept at a time, and the listener is not rearmed until it returns.
func (a *Agent) accept(lfd int) {
	if a.closed.Load() {
		return
	}
	for {
		conn, err := transport.Accept(lfd)
		if errors.Is(err, iox.ErrWouldBlock) {
			return
		}
		if err != nil {
			a.opts.metrics.Inc(control.AcceptErrors)
			a.log.Warn("accept failed", "err", err)
			return
		}
		s, err := a.spawn(conn, nil)
		if err != nil {
			a.log.Warn("session setup failed", "remote", conn.RemoteAddr(), "err", err)
			continue
		}
		a.log.Info("session accepted", "session", s.Label(), "remote", s.RemoteAddr())
	}
}

// spawn wraps conn in a session bound to delegate and starts it. conn is
// closed on failure.
func (a *Agent) spawn(conn session.Socket, delegate api.Delegate) (*session.Session, error) {
	id := a.ids.Add(1)
	s, err := session.New(id, conn, a.r, session.Config{
		Dispatcher:       a.dispatcher,
		Delegate:         delegate,
		Target:           a.target,
		Logger:           a.log,
		Metrics:          a.opts.metrics,
		Tap:              a.opts.tap,
		ReadBufferSize:   a.opts.readBufferSize,
		MaxPayload:       a.opts.maxPayload,
		MaxPendingWrites: a.opts.maxPendingWrites,
		WritePolicy:      a.opts.writePolicy,
		IdleTimeout:      a.opts.idleTimeout,
		OnDestroy: func(s *session.Session) {
			a.sessions.Remove(s.ID())
		},
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.sessions.Add(id, s)
	s.Start()
	if a.closed.Load() {
		s.Close()
	}
	return s, nil
}

// Connect resolves host and service and connects to every candidate,
// binding the client delegate to each resulting session and notifying it
// with Connected. Unless WithConnectTryAll is set, the first failure
// closes the sessions established so far and is returned. The first
// established session is returned. It does nothing on a server agent.
func (a *Agent) Connect(ctx context.Context, host, service string) (api.Session, error) {
	if a.mode != Client {
		return nil, nil
	}
	if a.closed.Load() {
		return nil, ErrAgentClosed
	}
	eps, err := a.resolve(ctx, a.opts.network, host, service, false)
	if err != nil {
		return nil, err
	}

	var (
		established []*session.Session
		lastErr     error
	)
	fail := func(err error) error {
		if a.opts.connectTryAll {
			lastErr = err
			a.log.Warn("connect candidate failed", "err", err)
			return nil
		}
		for _, s := range established {
			s.Close()
		}
		return err
	}
	for _, ep := range eps {
		conn, err := transport.Connect(ctx, ep, a.opts.connectTimeout)
		if err != nil {
			if err = fail(err); err != nil {
				return nil, err
			}
			continue
		}
		s, err := a.spawn(conn, a.opts.clientDelegate)
		if err != nil {
			if err = fail(err); err != nil {
				return nil, err
			}
			continue
		}
		s.NotifyConnected()
		a.log.Info("session connected", "session", s.Label(), "remote", s.RemoteAddr())
		established = append(established, s)
	}
	if len(established) == 0 {
		if lastErr == nil {
			lastErr = api.NewError(api.KindConnect, "connect", errors.New("no candidates"))
		}
		return nil, lastErr
	}
	return established[0], nil
}

// Addrs returns the bound addresses of the listening sockets. Sockets
// opened by one Listen call share a port.
func (a *Agent) Addrs() []netip.AddrPort {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]netip.AddrPort, 0, len(a.listeners))
	for _, l := range a.listeners {
		out = append(out, l.addr)
	}
	return out
}

// Sessions returns the number of live sessions.
func (a *Agent) Sessions() int { return a.sessions.Len() }

// Session looks up a live session by id.
func (a *Agent) Session(id uint32) (api.Session, bool) {
	s, ok := a.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return s, true
}

// RegisterProbes exposes the agent's listeners and sessions on dp.
func (a *Agent) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("agent.mode", func() any { return a.mode.String() })
	dp.RegisterProbe("agent.listeners", func() any {
		addrs := a.Addrs()
		out := make([]string, len(addrs))
		for i, ap := range addrs {
			out[i] = ap.String()
		}
		return out
	})
	dp.RegisterProbe("pool.bytes", func() any {
		gets, misses := pool.Default.Stats()
		return map[string]uint64{"gets": gets, "misses": misses}
	})
	dp.RegisterProbe("agent.sessions", func() any {
		snap := a.sessions.Snapshot()
		out := make([]map[string]any, 0, len(snap))
		for _, s := range snap {
			out = append(out, map[string]any{
				"label":   s.Label(),
				"remote":  s.RemoteAddr(),
				"state":   s.State().String(),
				"pending": s.Pending(),
			})
		}
		return out
	})
}

// Close stops accepting, closes every session and waits up to the close
// timeout for them to be destroyed. A shared reactor is left running.
func (a *Agent) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.mu.Lock()
	ls := a.listeners
	a.listeners = nil
	a.mu.Unlock()
	for _, l := range ls {
		l.src.Cancel()
	}
	for _, s := range a.sessions.Snapshot() {
		s.Close()
	}

	var err error
	deadline := time.Now().Add(a.opts.closeTimeout)
	var bo iox.Backoff
	for a.sessions.Len() > 0 && time.Now().Before(deadline) {
		bo.Wait()
	}
	if n := a.sessions.Len(); n > 0 {
		a.log.Warn("sessions still open after close timeout", "count", n)
		err = fmt.Errorf("%d sessions still open after %s", n, a.opts.closeTimeout)
	}
	a.queue.Sync(func() {})

	if a.ownReactor {
		err = errors.Join(err, a.r.Close())
		<-a.runDone
	}
	if a.exec != nil {
		a.exec.Close()
	}
	a.log.Info("agent closed")
	return err
}
