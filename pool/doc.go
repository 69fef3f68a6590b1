// Package pool
// Author: momentics <momentics@gmail.com>
//
// Scratch memory for the I/O paths. Read handlers borrow a buffer sized to
// the kernel's readable-bytes estimate and hand it back once the bytes have
// been fed into the frame assembler, so steady-state reads do not allocate.
package pool
