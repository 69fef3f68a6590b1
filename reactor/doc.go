// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides readiness sources over a poll-mode event reactor.
// A source watches one direction of one file descriptor and delivers each
// readiness event as a task on the execution queue it was created with.
// Sources start suspended, and suspension or cancellation applies to every
// event not yet delivered. The Linux implementation uses epoll with
// EPOLLONESHOT and re-arms a descriptor only after its handler returned, so
// handlers of one source never overlap.
package reactor
