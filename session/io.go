// File: session/io.go
// Author: momentics <momentics@gmail.com>
//
// Read and write paths. Both handlers run on the session queue, driven by
// the reactor's readiness sources.

package session

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/protocol"
)

// handleRead performs one non-blocking read sized by the readable-bytes
// estimate and feeds the result through the frame assembler.
func (s *Session) handleRead(estimate int) {
	if s.State() != api.SessionActive {
		return
	}
	size := min(max(estimate, 1), s.cfg.ReadBufferSize)
	buf, err := s.cfg.Pool.Get(size)
	if err != nil {
		s.shutdown("read buffer", err)
		return
	}
	defer s.cfg.Pool.Put(buf)

	n, err := s.sock.Read(buf)
	switch {
	case errors.Is(err, iox.ErrWouldBlock):
		return
	case err != nil:
		s.cfg.Metrics.Inc(control.ReadErrors)
		s.shutdown("read error", api.NewError(api.KindIO, "read", err).WithAddr(s.sock.RemoteAddr()))
		return
	case n == 0:
		s.shutdown("peer closed", nil)
		return
	}
	s.touch()
	s.cfg.Metrics.Add(control.BytesIn, int64(n))
	s.feed(buf[:n])
}

// feed runs bytes through the assembler, routing on each new header and
// announcing each complete frame. A complete frame nobody consumed is
// discarded when the next frame's bytes arrive.
func (s *Session) feed(p []byte) {
	for len(p) > 0 && s.State() == api.SessionActive {
		s.mu.Lock()
		if s.asm.Complete() {
			s.asm.Reset()
			s.cfg.Metrics.Inc(control.FramesDropped)
			s.log.Warn("unconsumed frame dropped")
		}
		hadHeader := s.asm.HeaderReady()
		n, err := s.asm.Feed(p)
		if err != nil {
			s.asm.Reset()
			s.mu.Unlock()
			s.cfg.Metrics.Inc(control.ProtocolErrors)
			s.shutdown("bad frame", classify("parse", err).WithAddr(s.sock.RemoteAddr()))
			return
		}
		p = p[n:]
		newHeader := !hadHeader && s.asm.HeaderReady()
		h := s.asm.Frame.Header
		complete := s.asm.Complete()
		if complete && s.cfg.Tap != nil {
			s.cfg.Tap.Record(s.id, protocol.Inbound, h, s.asm.Frame.Payload)
		}
		s.mu.Unlock()

		if newHeader {
			s.route(h.TargetAgentID)
		}
		if complete {
			s.cfg.Metrics.Inc(control.FramesIn)
			s.log.Debug("frame received", "source", h.SourceAgentID, "target", h.TargetAgentID, "len", h.PayloadLength)
			if d := s.delegate; d != nil {
				s.notify("data_received", d.DataReceived)
			}
		}
	}
}

// ReadData returns the buffered payload and clears the read frame. It
// returns nil while no complete frame is buffered.
func (s *Session) ReadData() []byte {
	_, p := s.ReadFrame()
	return p
}

// ReadFrame is ReadData plus the frame header.
func (s *Session) ReadFrame() (protocol.Header, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.asm.Complete() {
		return protocol.Header{}, nil
	}
	return s.asm.Take()
}

// WriteData validates and queues one outbound frame. payload is copied.
func (s *Session) WriteData(sourceAgentID, targetAgentID uint32, payload []byte) error {
	if s.State() != api.SessionActive {
		return api.ErrSessionClosed
	}
	if len(payload) == 0 {
		return api.ErrEmptyPayload
	}
	if uint64(len(payload)) > uint64(s.cfg.MaxPayload) {
		return fmt.Errorf("%w: %d > %d", protocol.ErrPayloadTooLarge, len(payload), s.cfg.MaxPayload)
	}
	if s.cfg.WritePolicy == WriteQueue {
		if int(s.pending.Add(1)) > s.cfg.MaxPendingWrites {
			s.pending.Add(-1)
			return api.ErrWriteBackpressure
		}
	} else {
		s.pending.Add(1)
	}
	f := protocol.NewFrame(sourceAgentID, targetAgentID, append([]byte(nil), payload...))
	s.queue.Async(func() { s.enqueue(f) })
	return nil
}

func (s *Session) enqueue(f *protocol.Frame) {
	if s.State() != api.SessionActive {
		s.pending.Add(-1)
		return
	}
	if s.cfg.WritePolicy == WriteOverwrite {
		for s.outq.Length() > 0 {
			s.outq.Remove()
			s.pending.Add(-1)
			s.cfg.Metrics.Inc(control.FramesDropped)
		}
	}
	s.outq.Add(f)
	s.activateWrite()
}

func (s *Session) activateWrite() {
	if !s.writeActive {
		s.writeActive = true
		s.writeSrc.Resume()
	}
}

func (s *Session) deactivateWrite() {
	if s.writeActive {
		s.writeActive = false
		s.writeSrc.Suspend()
	}
}

// handleWrite drains the outbound queue until the socket would block. The
// current frame is serialized once and tracked by offset, so a partial
// write never resends the header.
func (s *Session) handleWrite(int) {
	if s.State() != api.SessionActive {
		return
	}
	for {
		if s.wbuf == nil {
			if s.outq.Length() == 0 {
				s.deactivateWrite()
				return
			}
			s.wframe = s.outq.Remove().(*protocol.Frame)
			s.wbuf = s.wframe.Serialize()
			s.woff = 0
		}

		n, err := s.sock.Write(s.wbuf[s.woff:])
		if n > 0 {
			s.woff += n
			s.cfg.Metrics.Add(control.BytesOut, int64(n))
			s.touch()
		}
		switch {
		case errors.Is(err, iox.ErrWouldBlock):
			return
		case err != nil:
			// The read side decides the session's fate; stop polling for
			// writability until the next WriteData.
			s.cfg.Metrics.Inc(control.WriteErrors)
			s.log.Warn("write failed", "err", api.NewError(api.KindIO, "write", err).WithAddr(s.sock.RemoteAddr()))
			s.deactivateWrite()
			return
		}
		if s.woff < len(s.wbuf) {
			continue
		}

		f := s.wframe
		s.wbuf, s.wframe, s.woff = nil, nil, 0
		s.pending.Add(-1)
		s.cfg.Metrics.Inc(control.FramesOut)
		if s.cfg.Tap != nil {
			s.cfg.Tap.Record(s.id, protocol.Outbound, f.Header, f.Payload)
		}
		s.log.Debug("frame sent", "source", f.Header.SourceAgentID, "target", f.Header.TargetAgentID, "len", f.Header.PayloadLength)
		if d := s.delegate; d != nil {
			s.notify("data_sent", d.DataSent)
		}
		if s.State() != api.SessionActive {
			return
		}
	}
}
