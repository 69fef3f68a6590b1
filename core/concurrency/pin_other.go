//go:build !linux

// File: core/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>

package concurrency

// PinCurrentThread is not available on this platform.
func PinCurrentThread(cpu int) error { return ErrPinUnsupported }
