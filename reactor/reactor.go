// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness source interfaces.

package reactor

import (
	"errors"
	"log/slog"

	"github.com/momentics/agentwire/core/concurrency"
)

var (
	ErrClosed         = errors.New("reactor: closed")
	ErrAlreadyWatched = errors.New("reactor: descriptor direction already watched")
)

// Kind selects the readiness direction a source watches.
type Kind uint8

const (
	Read Kind = iota + 1
	Write
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Handler receives a readiness event. For read sources estimate is the
// number of bytes the kernel reports as readable (advisory, may be 0);
// for write sources it is 0.
type Handler func(estimate int)

// Queue is the serialized execution context events are delivered on.
type Queue interface {
	Async(task concurrency.TaskFunc)
}

// Source is one registered readiness watch.
type Source interface {
	Kind() Kind
	FD() int

	// Suspend and Resume nest. A new source starts with one suspension.
	Suspend()
	Resume()

	// Cancel stops delivery for good. The cancel handler passed to Watch
	// runs once on the source's queue after any in-flight handler.
	Cancel()
}

// Reactor multiplexes readiness for many sources.
type Reactor interface {
	Watch(fd int, kind Kind, q Queue, h Handler, cancel func()) (Source, error)

	// Run blocks dispatching events until Close.
	Run() error
	Close() error
}

// Option configures a reactor.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	maxEvents int
}

// WithLogger sets the logger used for recovered handler panics and poll errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxEvents sets the epoll_wait batch size.
func WithMaxEvents(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEvents = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), maxEvents: 128}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
