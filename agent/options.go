// File: agent/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for Agent.

package agent

import (
	"log/slog"
	"time"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/reactor"
	"github.com/momentics/agentwire/session"
)

// Defaults.
const (
	DefaultBacklog      = 128
	DefaultNetwork      = "tcp4"
	DefaultCloseTimeout = 5 * time.Second
)

// Option configures an Agent.
type Option func(*options)

type options struct {
	logger           *slog.Logger
	metrics          *control.MetricsRegistry
	tap              session.Tap
	workers          int
	pinWorkers       bool
	readBufferSize   int
	maxPayload       uint32
	maxPendingWrites int
	writePolicy      session.WritePolicy
	connectTimeout   time.Duration
	idleTimeout      time.Duration
	closeTimeout     time.Duration
	connectTryAll    bool
	backlog          int
	network          string
	clientDelegate   api.Delegate
	reactor          reactor.Reactor
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		backlog:      DefaultBacklog,
		network:      DefaultNetwork,
		closeTimeout: DefaultCloseTimeout,
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records engine counters into m.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(o *options) { o.metrics = m }
}

// WithTap shows every complete frame to t.
func WithTap(t session.Tap) Option {
	return func(o *options) { o.tap = t }
}

// WithWorkers runs session queues on a pool of n workers instead of
// ad-hoc goroutines.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithPinnedWorkers binds each pool worker to one CPU. It only applies
// together with WithWorkers.
func WithPinnedWorkers(on bool) Option {
	return func(o *options) { o.pinWorkers = on }
}

// WithReadBufferSize caps a single socket read.
func WithReadBufferSize(n int) Option {
	return func(o *options) { o.readBufferSize = n }
}

// WithMaxPayload bounds inbound and outbound frame payloads.
func WithMaxPayload(n uint32) Option {
	return func(o *options) { o.maxPayload = n }
}

// WithMaxPendingWrites bounds the per-session outbound queue.
func WithMaxPendingWrites(n int) Option {
	return func(o *options) { o.maxPendingWrites = n }
}

// WithWritePolicy selects queueing or overwrite semantics for WriteData.
func WithWritePolicy(p session.WritePolicy) Option {
	return func(o *options) { o.writePolicy = p }
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithIdleTimeout closes sessions without traffic for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithCloseTimeout bounds how long Close waits for sessions to finish.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithConnectTryAll keeps trying remaining candidates after a failed
// connect instead of aborting.
func WithConnectTryAll(on bool) Option {
	return func(o *options) { o.connectTryAll = on }
}

// WithBacklog sets the listen backlog.
func WithBacklog(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.backlog = n
		}
	}
}

// WithNetwork selects "tcp", "tcp4" or "tcp6".
func WithNetwork(network string) Option {
	return func(o *options) {
		if network != "" {
			o.network = network
		}
	}
}

// WithClientDelegate binds d to every session Connect establishes.
func WithClientDelegate(d api.Delegate) Option {
	return func(o *options) { o.clientDelegate = d }
}

// WithReactor shares an existing reactor; the agent neither runs nor
// closes it.
func WithReactor(r reactor.Reactor) Option {
	return func(o *options) { o.reactor = r }
}
