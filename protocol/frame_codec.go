// File: protocol/frame_codec.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Blocking stream codec with frame size enforcement, for peers that talk
// the protocol over a plain io.Reader/io.Writer instead of a session.

package protocol

import (
	"fmt"
	"io"
)

// ReadFrame reads exactly one non-empty frame from r. Keep-alive headers
// (zero-length payload) are skipped. maxPayload of 0 disables the limit.
func ReadFrame(r io.Reader, maxPayload uint32) (*Frame, error) {
	var hdr [HeaderSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		h, _ := ParseHeader(hdr[:])
		if err := h.Validate(maxPayload); err != nil {
			return nil, err
		}
		if h.PayloadLength == 0 {
			continue
		}
		payload := make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return &Frame{Header: h, Payload: payload}, nil
	}
}

// WriteFrame writes f to w in a single Write call.
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(f.Serialize())
	return err
}
