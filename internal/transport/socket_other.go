//go:build !linux

// File: internal/transport/socket_other.go
// Author: momentics <momentics@gmail.com>
//
// Raw sockets are only implemented for Linux.

package transport

import (
	"context"
	"net/netip"
	"time"

	"github.com/momentics/agentwire/api"
)

func Listen(ap netip.AddrPort, backlog int) (int, error) {
	return -1, api.NewError(api.KindSocketSetup, "listen", api.ErrNotSupported).WithAddr(ap.String())
}

func Accept(lfd int) (*Conn, error) {
	return nil, api.NewError(api.KindIO, "accept", api.ErrNotSupported)
}

func Connect(ctx context.Context, ap netip.AddrPort, timeout time.Duration) (*Conn, error) {
	return nil, api.NewError(api.KindSocketSetup, "connect", api.ErrNotSupported).WithAddr(ap.String())
}

func LocalAddr(fd int) (netip.AddrPort, error) { return netip.AddrPort{}, api.ErrNotSupported }

func CloseFD(fd int) error { return api.ErrNotSupported }

// Conn is unavailable on this platform.
type Conn struct{}

func (c *Conn) FD() int                     { return -1 }
func (c *Conn) RemoteAddr() string          { return "" }
func (c *Conn) Read(p []byte) (int, error)  { return 0, api.ErrNotSupported }
func (c *Conn) Write(p []byte) (int, error) { return 0, api.ErrNotSupported }
func (c *Conn) Available() int              { return 0 }
func (c *Conn) Close() error                { return nil }
