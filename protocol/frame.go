// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Length-prefixed agent frame: a fixed 13-byte header followed by the
// payload. One Frame value is reused per direction per session; Reset
// keeps the payload capacity so steady-state traffic does not allocate.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortHeader     = errors.New("protocol: header shorter than 13 bytes")
	ErrBadTag          = errors.New("protocol: unknown protocol tag")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum size")
)

// Header is the decoded fixed-size frame header.
type Header struct {
	Tag           uint8
	PayloadLength uint32
	SourceAgentID uint32
	TargetAgentID uint32
}

// Validate checks the tag and the declared payload length against max.
// A max of 0 disables the size check.
func (h Header) Validate(max uint32) error {
	if h.Tag != Tag {
		return fmt.Errorf("%w: 0x%02x", ErrBadTag, h.Tag)
	}
	if max > 0 && h.PayloadLength > max {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.PayloadLength, max)
	}
	return nil
}

// AppendTo appends the wire form of h to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, h.Tag)
	dst = binary.BigEndian.AppendUint32(dst, h.PayloadLength)
	dst = binary.BigEndian.AppendUint32(dst, h.SourceAgentID)
	dst = binary.BigEndian.AppendUint32(dst, h.TargetAgentID)
	return dst
}

// ParseHeader decodes the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Tag:           b[offTag],
		PayloadLength: binary.BigEndian.Uint32(b[offLength:]),
		SourceAgentID: binary.BigEndian.Uint32(b[offSource:]),
		TargetAgentID: binary.BigEndian.Uint32(b[offTarget:]),
	}, nil
}

// Frame is a header plus the payload accumulated so far.
type Frame struct {
	Header  Header
	Payload []byte
}

// NewFrame builds a ready-to-send frame around payload (not copied).
func NewFrame(source, target uint32, payload []byte) *Frame {
	return &Frame{
		Header: Header{
			Tag:           Tag,
			PayloadLength: uint32(len(payload)),
			SourceAgentID: source,
			TargetAgentID: target,
		},
		Payload: payload,
	}
}

// Reset returns f to the empty state, keeping payload capacity.
func (f *Frame) Reset() {
	f.Header = Header{Tag: Tag}
	f.Payload = f.Payload[:0]
}

// Complete reports whether the declared payload has fully arrived.
// Zero-length frames are never complete.
func (f *Frame) Complete() bool {
	return len(f.Payload) > 0 && uint64(f.Header.PayloadLength) == uint64(len(f.Payload))
}

// Empty reports whether no payload byte has been accumulated.
func (f *Frame) Empty() bool {
	return len(f.Payload) == 0
}

// Size is the wire size of the frame as currently buffered.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// AppendTo appends header and payload to dst.
func (f *Frame) AppendTo(dst []byte) []byte {
	dst = f.Header.AppendTo(dst)
	return append(dst, f.Payload...)
}

// Serialize returns the wire form of f in a fresh slice.
func (f *Frame) Serialize() []byte {
	return f.AppendTo(make([]byte, 0, f.Size()))
}

func (f *Frame) String() string {
	return fmt.Sprintf("[payload_size=%d, source_agent_id=%d, target_agent_id=%d, current_payload_size=%d]",
		f.Header.PayloadLength, f.Header.SourceAgentID, f.Header.TargetAgentID, len(f.Payload))
}
