//go:build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor using one-shot epoll registrations.
type epollReactor struct {
	opts options

	epfd int
	efd  int // eventfd used to wake Run on Close

	mu  sync.Mutex
	fds map[int]*fdEntry

	running atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
}

// fdEntry is the kernel registration shared by the read and write source
// of one descriptor.
type fdEntry struct {
	fd          int
	sources     [2]*source
	kernelArmed bool
	removed     bool
}

type source struct {
	r      *epollReactor
	entry  *fdEntry
	kind   Kind
	queue  Queue
	handle Handler
	cancel func()

	// guarded by r.mu
	suspend     int
	pending     bool
	cancelled   bool
	cancelFired bool
}

// New creates an epoll reactor. Call Run on a dedicated goroutine.
func New(opts ...Option) (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &ev); err != nil {
		unix.Close(efd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &epollReactor{
		opts: buildOptions(opts),
		epfd: epfd,
		efd:  efd,
		fds:  make(map[int]*fdEntry),
		done: make(chan struct{}),
	}, nil
}

// Watch registers a suspended source for one direction of fd.
func (r *epollReactor) Watch(fd int, kind Kind, q Queue, h Handler, cancel func()) (Source, error) {
	if kind != Read && kind != Write {
		return nil, fmt.Errorf("reactor: invalid kind %d", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return nil, ErrClosed
	}
	e := r.fds[fd]
	if e == nil {
		ev := unix.EpollEvent{Events: unix.EPOLLONESHOT, Fd: int32(fd)}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return nil, fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
		}
		e = &fdEntry{fd: fd}
		r.fds[fd] = e
	}
	idx := kind - 1
	if s := e.sources[idx]; s != nil && !s.cancelled {
		return nil, ErrAlreadyWatched
	}
	s := &source{r: r, entry: e, kind: kind, queue: q, handle: h, cancel: cancel, suspend: 1}
	e.sources[idx] = s
	return s, nil
}

// Run dispatches readiness events until Close.
func (r *epollReactor) Run() error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	defer close(r.done)
	if r.closed.Load() {
		return ErrClosed
	}

	events := make([]unix.EpollEvent, r.opts.maxEvents)
	var ready []*source
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue // interrupted by signal, normal
			}
			return fmt.Errorf("epoll wait: %w", err)
		}
		ready = ready[:0]
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.efd {
				if r.closed.Load() {
					return nil
				}
				var buf [8]byte
				_, _ = unix.Read(r.efd, buf[:])
				continue
			}
			ready = r.collect(fd, events[i].Events, ready)
		}
		for _, s := range ready {
			s := s
			s.queue.Async(func() { r.deliver(s) })
		}
	}
}

// Close stops Run and releases the epoll descriptors. Registered
// descriptors are not closed; they belong to their sources' owners.
func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.running.Load() {
		var buf [8]byte
		binary.NativeEndian.PutUint64(buf[:], 1)
		_, _ = unix.Write(r.efd, buf[:])
		<-r.done
	}
	err := unix.Close(r.epfd)
	if cerr := unix.Close(r.efd); err == nil {
		err = cerr
	}
	return err
}

// collect marks armed sources of fd matching ev as pending and appends them
// to out. Errors and hangups are delivered to every armed source so the
// owner observes them through its normal read or write path.
func (r *epollReactor) collect(fd int, ev uint32, out []*source) []*source {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.fds[fd]
	if e == nil {
		return out
	}
	e.kernelArmed = false
	failed := ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0
	for _, s := range e.sources {
		if s == nil || !s.armedLocked() {
			continue
		}
		if failed || ev&s.mask() != 0 {
			s.pending = true
			out = append(out, s)
		}
	}
	r.rearmLocked(e)
	return out
}

// deliver runs on the source's queue.
func (r *epollReactor) deliver(s *source) {
	r.mu.Lock()
	run := !s.cancelled && s.suspend == 0
	r.mu.Unlock()

	if run {
		estimate := 0
		if s.kind == Read {
			if n, err := unix.IoctlGetInt(s.entry.fd, unix.TIOCINQ); err == nil {
				estimate = n
			}
		}
		r.invoke(s, estimate)
	}

	r.mu.Lock()
	s.pending = false
	fire := s.cancelled && !s.cancelFired
	if fire {
		s.cancelFired = true
	} else if !s.entry.removed {
		r.rearmLocked(s.entry)
	}
	r.mu.Unlock()
	if fire {
		r.runCancel(s)
	}
}

func (r *epollReactor) invoke(s *source, estimate int) {
	defer func() {
		if p := recover(); p != nil {
			r.opts.logger.Error("reactor handler panic", "fd", s.entry.fd, "kind", s.kind, "panic", p)
		}
	}()
	s.handle(estimate)
}

func (r *epollReactor) runCancel(s *source) {
	if s.cancel == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.opts.logger.Error("reactor cancel handler panic", "fd", s.entry.fd, "kind", s.kind, "panic", p)
		}
	}()
	s.cancel()
}

// rearmLocked pushes the current interest set of e to the kernel.
func (r *epollReactor) rearmLocked(e *fdEntry) {
	var mask uint32
	for _, s := range e.sources {
		if s != nil && s.armedLocked() {
			mask |= s.mask()
		}
	}
	if mask == 0 && !e.kernelArmed {
		return
	}
	ev := unix.EpollEvent{Events: mask | unix.EPOLLONESHOT, Fd: int32(e.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, e.fd, &ev); err != nil {
		r.opts.logger.Warn("epoll rearm failed", "fd", e.fd, "err", err)
		return
	}
	e.kernelArmed = mask != 0
}

func (s *source) armedLocked() bool {
	return !s.cancelled && !s.pending && s.suspend == 0
}

func (s *source) mask() uint32 {
	if s.kind == Read {
		return unix.EPOLLIN
	}
	return unix.EPOLLOUT
}

func (s *source) Kind() Kind { return s.kind }
func (s *source) FD() int    { return s.entry.fd }

func (s *source) Suspend() {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.cancelled {
		return
	}
	s.suspend++
	if s.suspend == 1 && !s.entry.removed {
		r.rearmLocked(s.entry)
	}
}

func (s *source) Resume() {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.cancelled || s.suspend == 0 {
		return
	}
	s.suspend--
	if s.suspend == 0 && !s.entry.removed {
		r.rearmLocked(s.entry)
	}
}

func (s *source) Cancel() {
	r := s.r
	r.mu.Lock()
	if s.cancelled {
		r.mu.Unlock()
		return
	}
	s.cancelled = true
	e := s.entry
	all := true
	for _, o := range e.sources {
		if o != nil && !o.cancelled {
			all = false
		}
	}
	if !e.removed {
		if all {
			if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, e.fd, nil); err != nil {
				r.opts.logger.Debug("epoll ctl del", "fd", e.fd, "err", err)
			}
			delete(r.fds, e.fd)
			e.removed = true
		} else {
			r.rearmLocked(e)
		}
	}
	fire := !s.pending
	if fire {
		s.cancelFired = true
	}
	r.mu.Unlock()
	if fire {
		s.queue.Async(func() { r.runCancel(s) })
	}
}
