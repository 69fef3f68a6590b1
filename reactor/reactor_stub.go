//go:build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/agentwire/api"

// New returns an error for unsupported platforms.
func New(opts ...Option) (Reactor, error) {
	_ = buildOptions(opts)
	return nil, api.ErrNotSupported
}
