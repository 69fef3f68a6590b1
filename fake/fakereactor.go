// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/agentwire/reactor"
)

// Reactor records watches and lets tests fire readiness by hand.
type Reactor struct {
	mu      sync.Mutex
	sources map[key]*Source
	closed  chan struct{}
	once    sync.Once
}

type key struct {
	fd   int
	kind reactor.Kind
}

// NewReactor creates an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{sources: make(map[key]*Source), closed: make(chan struct{})}
}

func (r *Reactor) Watch(fd int, kind reactor.Kind, q reactor.Queue, h reactor.Handler, cancel func()) (reactor.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{fd, kind}
	if s := r.sources[k]; s != nil && !s.Cancelled() {
		return nil, fmt.Errorf("fake: fd %d %s already watched", fd, kind)
	}
	s := &Source{fd: fd, kind: kind, queue: q, handle: h, cancel: cancel, suspend: 1}
	r.sources[k] = s
	return s, nil
}

// Run blocks until Close.
func (r *Reactor) Run() error {
	<-r.closed
	return nil
}

func (r *Reactor) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

// Source returns the latest source watching fd in direction kind.
func (r *Reactor) Source(fd int, kind reactor.Kind) *Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[key{fd, kind}]
}

// Source is a hand-fired readiness source with call counters.
type Source struct {
	mu        sync.Mutex
	fd        int
	kind      reactor.Kind
	queue     reactor.Queue
	handle    reactor.Handler
	cancel    func()
	suspend   int
	cancelled bool
	resumes   int
	suspends  int
	cancels   int
}

func (s *Source) Kind() reactor.Kind { return s.kind }
func (s *Source) FD() int            { return s.fd }

func (s *Source) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspends++
	if !s.cancelled {
		s.suspend++
	}
}

func (s *Source) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	if !s.cancelled && s.suspend > 0 {
		s.suspend--
	}
}

func (s *Source) Cancel() {
	s.mu.Lock()
	s.cancels++
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		s.queue.Async(cancel)
	}
}

// Fire delivers one readiness event if the source is armed. The handler
// runs later on the source's queue and is skipped if the source was
// suspended or cancelled in between.
func (s *Source) Fire(estimate int) bool {
	if !s.Armed() {
		return false
	}
	s.queue.Async(func() {
		if s.Armed() {
			s.handle(estimate)
		}
	})
	return true
}

// Armed reports whether events would be delivered.
func (s *Source) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cancelled && s.suspend == 0
}

func (s *Source) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Counts returns how many times Resume, Suspend and Cancel were called.
func (s *Source) Counts() (resumes, suspends, cancels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes, s.suspends, s.cancels
}
