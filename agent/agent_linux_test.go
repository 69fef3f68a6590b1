// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

//go:build linux

// agent_linux_test.go — end-to-end ping/pong between a server and a client
// agent over loopback.
package agent_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"code.hybscloud.com/iox"

	"github.com/momentics/agentwire/agent"
	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/fake"
	"github.com/momentics/agentwire/internal/transport"
)

const (
	serverAgent = 5
	clientAgent = 9
)

// echo replies to every frame with the same payload, addressed back to the
// frame's source.
type echo struct {
	id     uint32
	closed chan struct{}
}

func newEcho(id uint32) *echo { return &echo{id: id, closed: make(chan struct{}, 16)} }

func (e *echo) AgentID() uint32       { return e.id }
func (e *echo) Connected(api.Session) {}
func (e *echo) DataSent(api.Session)  {}
func (e *echo) Closed(api.Session)    { e.closed <- struct{}{} }

func (e *echo) DataReceived(s api.Session) {
	h, p := s.ReadFrame()
	if p == nil {
		return
	}
	_ = s.WriteData(e.id, h.SourceAgentID, p)
}

type pair struct {
	server  *agent.Agent
	client  *agent.Agent
	echo    *echo
	peer    *fake.Delegate
	metrics *control.MetricsRegistry
}

func newPair(t *testing.T, opts ...agent.Option) *pair {
	t.Helper()
	p := &pair{echo: newEcho(serverAgent), peer: fake.NewDelegate(clientAgent), metrics: control.NewMetricsRegistry()}
	reg := agent.NewRegistry()
	if err := reg.Register(p.echo); err != nil {
		t.Fatal(err)
	}

	var err error
	p.server, err = agent.New(agent.Server, reg, append([]agent.Option{agent.WithMetrics(p.metrics)}, opts...)...)
	if err != nil {
		t.Fatalf("server New: %v", err)
	}
	t.Cleanup(func() { _ = p.server.Close() })
	if err := p.server.Listen(context.Background(), "127.0.0.1", "0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	p.client, err = agent.New(agent.Client, nil, append([]agent.Option{agent.WithClientDelegate(p.peer)}, opts...)...)
	if err != nil {
		t.Fatalf("client New: %v", err)
	}
	t.Cleanup(func() { _ = p.client.Close() })
	return p
}

func (p *pair) connect(t *testing.T) api.Session {
	t.Helper()
	addrs := p.server.Addrs()
	if len(addrs) != 1 {
		t.Fatalf("Addrs = %v, want one", addrs)
	}
	s, err := p.client.Connect(context.Background(), "127.0.0.1", strconv.Itoa(int(addrs[0].Port())))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var bo iox.Backoff
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		bo.Wait()
	}
}

func TestPingPong(t *testing.T) {
	p := newPair(t)
	s := p.connect(t)

	waitFor(t, "connected", func() bool { return p.peer.Count(fake.EventConnected) == 1 })
	if err := s.WriteData(clientAgent, serverAgent, []byte("ping")); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	waitFor(t, "echo", func() bool { return len(p.peer.Received()) == 1 })
	if got := p.peer.Received()[0]; !bytes.Equal(got, []byte("ping")) {
		t.Fatalf("echo = %q, want ping", got)
	}
	waitFor(t, "server metrics", func() bool {
		return p.metrics.Counter(control.FramesIn) == 1 && p.metrics.Counter(control.FramesOut) == 1
	})
	if p.server.Sessions() != 1 || p.client.Sessions() != 1 {
		t.Fatalf("sessions server=%d client=%d, want 1/1", p.server.Sessions(), p.client.Sessions())
	}
}

func TestManyFramesArriveInOrder(t *testing.T) {
	p := newPair(t, agent.WithWorkers(2))
	s := p.connect(t)

	const n = 200
	for i := 0; i < n; i++ {
		if err := s.WriteData(clientAgent, serverAgent, []byte(fmt.Sprintf("frame-%03d", i))); err != nil {
			t.Fatalf("WriteData %d: %v", i, err)
		}
	}
	waitFor(t, "all echoes", func() bool { return len(p.peer.Received()) == n })
	for i, got := range p.peer.Received() {
		if want := fmt.Sprintf("frame-%03d", i); string(got) != want {
			t.Fatalf("echo %d = %q, want %q", i, got, want)
		}
	}
}

func TestClientCloseNotifiesServer(t *testing.T) {
	p := newPair(t)
	s := p.connect(t)
	waitFor(t, "accept", func() bool { return p.server.Sessions() == 1 })

	// The server delegate is bound by the first routed frame.
	if err := s.WriteData(clientAgent, serverAgent, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "echo", func() bool { return len(p.peer.Received()) == 1 })

	s.Close()
	select {
	case <-p.echo.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server delegate not closed")
	}
	waitFor(t, "server session destroyed", func() bool { return p.server.Sessions() == 0 })
	waitFor(t, "client session destroyed", func() bool { return p.client.Sessions() == 0 })
	if got := p.peer.Count(fake.EventClosed); got != 1 {
		t.Fatalf("client Closed fired %d times, want 1", got)
	}
}

func TestServerCloseTearsDownClients(t *testing.T) {
	p := newPair(t)
	p.connect(t)
	waitFor(t, "accept", func() bool { return p.server.Sessions() == 1 })

	if err := p.server.Close(); err != nil {
		t.Fatalf("server Close: %v", err)
	}
	if p.server.Sessions() != 0 {
		t.Fatalf("server sessions after Close = %d", p.server.Sessions())
	}
	waitFor(t, "client sees EOF", func() bool { return p.peer.Count(fake.EventClosed) == 1 })
	if err := p.server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestModeMismatchIsNoop(t *testing.T) {
	c, err := agent.New(agent.Client, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Listen(context.Background(), "127.0.0.1", "0"); err != nil {
		t.Fatalf("client Listen: %v", err)
	}
	if len(c.Addrs()) != 0 {
		t.Fatalf("client Addrs = %v", c.Addrs())
	}

	s, err := agent.New(agent.Server, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	sess, err := s.Connect(context.Background(), "127.0.0.1", "1")
	if sess != nil || err != nil {
		t.Fatalf("server Connect = %v, %v", sess, err)
	}
}

func TestConnectRefused(t *testing.T) {
	// Grab a free port, then close the listener so nothing accepts.
	srv, err := agent.New(agent.Server, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(context.Background(), "127.0.0.1", "0"); err != nil {
		t.Fatal(err)
	}
	port := strconv.Itoa(int(srv.Addrs()[0].Port()))
	_ = srv.Close()

	c, err := agent.New(agent.Client, nil, agent.WithConnectTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_, err = c.Connect(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, api.ErrConnect) {
		t.Fatalf("Connect = %v, want ErrConnect", err)
	}
	if c.Sessions() != 0 {
		t.Fatalf("sessions = %d after failed connect", c.Sessions())
	}
}

func TestListenBadServiceIsResolutionError(t *testing.T) {
	srv, err := agent.New(agent.Server, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	err = srv.Listen(context.Background(), "127.0.0.1", "no-such-service-agentwire")
	if !errors.Is(err, api.ErrResolution) {
		t.Fatalf("Listen = %v, want ErrResolution", err)
	}
}

func TestClosedAgentRejectsWork(t *testing.T) {
	c, err := agent.New(agent.Client, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Close()
	if _, err := c.Connect(context.Background(), "127.0.0.1", "1"); !errors.Is(err, agent.ErrAgentClosed) {
		t.Fatalf("Connect after Close = %v", err)
	}
}

func TestProbesListSessions(t *testing.T) {
	p := newPair(t)
	p.connect(t)
	waitFor(t, "accept", func() bool { return p.server.Sessions() == 1 })

	dp := control.NewDebugProbes()
	p.server.RegisterProbes(dp)
	state := dp.DumpState()
	if state["agent.mode"] != "server" {
		t.Fatalf("agent.mode = %v", state["agent.mode"])
	}
	if ls, _ := state["agent.listeners"].([]string); len(ls) != 1 {
		t.Fatalf("agent.listeners = %v", state["agent.listeners"])
	}
	if ss, _ := state["agent.sessions"].([]map[string]any); len(ss) != 1 {
		t.Fatalf("agent.sessions = %v", state["agent.sessions"])
	}
}

func TestAcceptDrainsBacklogBurst(t *testing.T) {
	p := newPair(t)
	addr := p.server.Addrs()[0]

	const n = 16
	for i := 0; i < n; i++ {
		c, err := transport.Connect(context.Background(), addr, time.Second)
		if err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		t.Cleanup(func() { _ = c.Close() })
	}
	waitFor(t, "all connections accepted", func() bool { return p.server.Sessions() == n })
	if got := p.metrics.Counter(control.AcceptErrors); got != 0 {
		t.Errorf("accept_errors = %d", got)
	}
}

func TestListenEphemeralPortIsShared(t *testing.T) {
	srv, err := agent.New(agent.Server, nil, agent.WithNetwork("tcp"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	if err := srv.Listen(context.Background(), "", "0"); err != nil {
		t.Skipf("dual-stack wildcard listen unavailable: %v", err)
	}
	addrs := srv.Addrs()
	if len(addrs) == 0 {
		t.Fatal("no listeners")
	}
	for _, ap := range addrs[1:] {
		if ap.Port() != addrs[0].Port() {
			t.Fatalf("Addrs = %v, want one port", addrs)
		}
	}
}
