// internal/transport/socket_linux.go
//go:build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux non-blocking TCP sockets on golang.org/x/sys/unix.

package transport

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"

	"github.com/momentics/agentwire/api"
)

// connectPollSlice bounds one poll(2) wait so context cancellation is
// noticed while a connect is in progress.
const connectPollSlice = 50 * time.Millisecond

func toSockaddr(ap netip.AddrPort) (unix.Sockaddr, int) {
	a := ap.Addr().Unmap()
	if a.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: a.As4()}, unix.AF_INET
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: a.As16()}, unix.AF_INET6
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr).Unmap(), uint16(v.Port))
	}
	return netip.AddrPort{}
}

func newSocket(family int) (int, error) {
	return unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
}

// Listen creates a non-blocking listening socket bound to ap with
// SO_REUSEADDR and SO_REUSEPORT. On failure nothing is left open.
func Listen(ap netip.AddrPort, backlog int) (fd int, err error) {
	addr := ap.String()
	sa, family := toSockaddr(ap)
	fd, err = newSocket(family)
	if err != nil {
		return -1, api.NewError(api.KindSocketSetup, "socket", err).WithAddr(addr)
	}
	defer func() {
		if err != nil {
			unix.Close(fd)
			fd = -1
		}
	}()
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fd, api.NewError(api.KindSocketSetup, "setsockopt SO_REUSEADDR", err).WithAddr(addr)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fd, api.NewError(api.KindSocketSetup, "setsockopt SO_REUSEPORT", err).WithAddr(addr)
	}
	if family == unix.AF_INET6 {
		if err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return fd, api.NewError(api.KindSocketSetup, "setsockopt IPV6_V6ONLY", err).WithAddr(addr)
		}
	}
	if err = unix.Bind(fd, sa); err != nil {
		return fd, api.NewError(api.KindSocketSetup, "bind", err).WithAddr(addr)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		return fd, api.NewError(api.KindSocketSetup, "listen", err).WithAddr(addr)
	}
	return fd, nil
}

// Accept takes one pending connection from a listening socket. It returns
// iox.ErrWouldBlock when the backlog is empty.
func Accept(lfd int) (*Conn, error) {
	for {
		nfd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return newConn(nfd, fromSockaddr(sa)), nil
		case err == unix.EINTR || err == unix.ECONNABORTED:
			continue
		case err == unix.EAGAIN:
			return nil, iox.ErrWouldBlock
		default:
			return nil, api.NewError(api.KindIO, "accept", err)
		}
	}
}

// Connect opens a non-blocking socket and completes a TCP handshake with
// ap, waiting at most timeout (0 means until ctx is done).
func Connect(ctx context.Context, ap netip.AddrPort, timeout time.Duration) (*Conn, error) {
	addr := ap.String()
	sa, family := toSockaddr(ap)
	fd, err := newSocket(family)
	if err != nil {
		return nil, api.NewError(api.KindSocketSetup, "socket", err).WithAddr(addr)
	}
	if err := waitConnect(ctx, fd, sa, timeout); err != nil {
		unix.Close(fd)
		return nil, api.NewError(api.KindConnect, "connect", err).WithAddr(addr)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return newConn(fd, ap), nil
}

func waitConnect(ctx context.Context, fd int, sa unix.Sockaddr, timeout time.Duration) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS && err != unix.EINTR {
		return err
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := connectPollSlice
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return fmt.Errorf("after %v: %w", timeout, unix.ETIMEDOUT)
			}
			wait = min(wait, left)
		}
		n, err := unix.Poll(pfd, int(wait.Milliseconds())+1)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			return err
		}
		soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}
		if soerr != 0 {
			return unix.Errno(soerr)
		}
		return nil
	}
}

// LocalAddr returns the address fd is bound to.
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return fromSockaddr(sa), nil
}

// CloseFD closes a raw descriptor such as a listener.
func CloseFD(fd int) error {
	return unix.Close(fd)
}

// Conn is a connected non-blocking TCP socket.
type Conn struct {
	fd     int
	remote netip.AddrPort
	once   sync.Once
}

func newConn(fd int, remote netip.AddrPort) *Conn {
	return &Conn{fd: fd, remote: remote}
}

// FD returns the socket descriptor.
func (c *Conn) FD() int { return c.fd }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote.String() }

// Read performs one non-blocking read. A zero count with a nil error is
// end of stream.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, iox.ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// Write performs one non-blocking send without raising SIGPIPE.
func (c *Conn) Write(p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, iox.ErrWouldBlock
		default:
			return n, err
		}
	}
}

// Available reports how many bytes are readable without blocking.
func (c *Conn) Available() int {
	n, err := unix.IoctlGetInt(c.fd, unix.TIOCINQ)
	if err != nil {
		return 0
	}
	return n
}

// Close closes the socket once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() { err = unix.Close(c.fd) })
	return err
}
