//go:build linux

// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// transport_test.go — resolution and loopback socket lifecycle.
package transport_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"code.hybscloud.com/iox"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/internal/transport"
)

func TestResolvePassiveWildcard(t *testing.T) {
	eps, err := transport.Resolve(context.Background(), "tcp4", "", "0", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(eps) != 1 || eps[0].Addr() != netip.IPv4Unspecified() || eps[0].Port() != 0 {
		t.Errorf("got %v", eps)
	}
}

func TestResolveLiteralAndErrors(t *testing.T) {
	eps, err := transport.Resolve(context.Background(), "tcp4", "127.0.0.1", "9000", false)
	if err != nil || len(eps) != 1 || eps[0].String() != "127.0.0.1:9000" {
		t.Fatalf("got %v, %v", eps, err)
	}
	_, err = transport.Resolve(context.Background(), "tcp6", "127.0.0.1", "9000", false)
	if !errors.Is(err, api.ErrResolution) {
		t.Errorf("family mismatch err = %v, want ErrResolution", err)
	}
	_, err = transport.Resolve(context.Background(), "udp", "127.0.0.1", "9000", false)
	if api.KindOf(err) != api.KindResolution {
		t.Errorf("bad network kind = %v", api.KindOf(err))
	}
}

func TestListenConnectAccept(t *testing.T) {
	lfd, err := transport.Listen(netip.MustParseAddrPort("127.0.0.1:0"), 16)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer transport.CloseFD(lfd)

	if _, err := transport.Accept(lfd); !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("empty backlog err = %v, want ErrWouldBlock", err)
	}

	local, err := transport.LocalAddr(lfd)
	if err != nil || local.Port() == 0 {
		t.Fatalf("LocalAddr = %v, %v", local, err)
	}
	client, err := transport.Connect(context.Background(), local, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	var server *transport.Conn
	deadline := time.Now().Add(2 * time.Second)
	var bo iox.Backoff
	for server == nil {
		server, err = transport.Accept(lfd)
		if errors.Is(err, iox.ErrWouldBlock) {
			if time.Now().After(deadline) {
				t.Fatal("accept timed out")
			}
			bo.Wait()
			continue
		}
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
	}
	defer server.Close()

	if _, err := server.Read(make([]byte, 4)); !errors.Is(err, iox.ErrWouldBlock) {
		t.Errorf("idle read err = %v", err)
	}
	if n, err := client.Write([]byte("ping")); err != nil || n != 4 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	bo.Reset()
	deadline = time.Now().Add(2 * time.Second)
	for server.Available() != 4 {
		if time.Now().After(deadline) {
			t.Fatalf("Available = %d, want 4", server.Available())
		}
		bo.Wait()
	}
	buf := make([]byte, 8)
	bo.Reset()
	for {
		n, err := server.Read(buf)
		if errors.Is(err, iox.ErrWouldBlock) {
			bo.Wait()
			continue
		}
		if err != nil || string(buf[:n]) != "ping" {
			t.Fatalf("Read = %q, %v", buf[:n], err)
		}
		break
	}

	client.Close()
	bo.Reset()
	for {
		n, err := server.Read(buf)
		if errors.Is(err, iox.ErrWouldBlock) {
			bo.Wait()
			continue
		}
		if n != 0 || err != nil {
			t.Fatalf("after peer close Read = %d, %v", n, err)
		}
		break
	}
}

func TestConnectRefused(t *testing.T) {
	lfd, err := transport.Listen(netip.MustParseAddrPort("127.0.0.1:0"), 1)
	if err != nil {
		t.Fatal(err)
	}
	local, _ := transport.LocalAddr(lfd)
	transport.CloseFD(lfd)

	_, err = transport.Connect(context.Background(), local, time.Second)
	if !errors.Is(err, api.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
}

func TestListenNonLocalAddressIsSetupError(t *testing.T) {
	_, err := transport.Listen(netip.MustParseAddrPort("192.0.2.1:0"), 1)
	if api.KindOf(err) != api.KindSocketSetup {
		t.Fatalf("kind = %v, err = %v", api.KindOf(err), err)
	}
}
