// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrExecutorClosed indicates the executor has been shut down
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrExecutorBusy indicates the executor queue is full; the caller
	// should run the task some other way rather than block.
	ErrExecutorBusy = errors.New("executor queue is full")

	// ErrInvalidWorkerCount indicates invalid worker count configuration
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrPinUnsupported indicates CPU pinning is unavailable on this OS
	ErrPinUnsupported = errors.New("cpu pinning not supported")
)
