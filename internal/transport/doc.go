// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Address resolution and raw non-blocking TCP socket primitives for the
// agent engine. Sockets are plain descriptors so they can be registered
// with the reactor; would-block conditions surface as iox.ErrWouldBlock and
// every setup failure is a classified *api.Error.

package transport
