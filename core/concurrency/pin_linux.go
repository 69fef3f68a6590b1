// File: core/concurrency/pin_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning of worker threads via sched_setaffinity.

package concurrency

import "golang.org/x/sys/unix"

// PinCurrentThread binds the calling OS thread to cpu. The caller must
// hold runtime.LockOSThread for the binding to stay with its goroutine.
func PinCurrentThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
