// Package agent
// Author: momentics <momentics@gmail.com>
//
// Server and client front ends of the engine.
//
// A server Agent listens on every address a host and service resolve to
// and wraps each accepted socket in a session routed through its
// dispatcher. A client Agent connects out and binds its client delegate
// to each session it creates. Registry is the stock dispatcher.
package agent
