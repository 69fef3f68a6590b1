// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the session's collaborators.

package fake

import (
	"bytes"
	"sync"

	"code.hybscloud.com/iox"
)

// Socket is a scripted non-blocking socket. Reads return queued chunks,
// then end of stream once SetEOF was called, otherwise iox.ErrWouldBlock.
// Writes succeed up to the configured budget.
type Socket struct {
	mu          sync.Mutex
	fd          int
	remote      string
	reads       [][]byte
	eof         bool
	readErr     error
	writeErr    error
	writeBudget int
	written     bytes.Buffer
	writeCalls  []int
	closed      int
}

// NewSocket creates a fake socket with an unlimited write budget.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd, remote: "127.0.0.1:1", writeBudget: -1}
}

// AddRecvData queues data to be returned by subsequent reads.
func (s *Socket) AddRecvData(chunks ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.reads = append(s.reads, append([]byte(nil), c...))
	}
}

// SetEOF makes reads return end of stream once queued data is drained.
func (s *Socket) SetEOF() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eof = true
}

// SetReadError configures the error returned once queued data is drained.
func (s *Socket) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// SetWriteError configures the socket to fail every write with err.
func (s *Socket) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetWriteBudget limits how many more bytes writes accept before
// reporting would-block. Negative means unlimited.
func (s *Socket) SetWriteBudget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeBudget = n
}

func (s *Socket) FD() int            { return s.fd }
func (s *Socket) RemoteAddr() string { return s.remote }

func (s *Socket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reads) > 0 {
		n := copy(p, s.reads[0])
		s.reads[0] = s.reads[0][n:]
		if len(s.reads[0]) == 0 {
			s.reads = s.reads[1:]
		}
		return n, nil
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	if s.eof {
		return 0, nil
	}
	return 0, iox.ErrWouldBlock
}

func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	n := len(p)
	if s.writeBudget >= 0 {
		if s.writeBudget == 0 {
			return 0, iox.ErrWouldBlock
		}
		n = min(n, s.writeBudget)
		s.writeBudget -= n
	}
	s.written.Write(p[:n])
	s.writeCalls = append(s.writeCalls, n)
	return n, nil
}

// Available reports the queued readable bytes.
func (s *Socket) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.reads {
		n += len(c)
	}
	return n
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Written returns a copy of everything written so far.
func (s *Socket) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written.Bytes()...)
}

// WriteCalls returns the byte count accepted by each successful write.
func (s *Socket) WriteCalls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.writeCalls...)
}

// CloseCount returns how many times Close was called.
func (s *Socket) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
