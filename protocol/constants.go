// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Agent frame wire constants.

package protocol

const (
	// Tag marks every frame of this protocol.
	Tag uint8 = 0xbb

	// HeaderSize is tag(1) + payload length(4) + source(4) + target(4).
	HeaderSize = 13

	// DefaultMaxPayload bounds the accumulation buffer of a single frame.
	DefaultMaxPayload uint32 = 16 << 20 // 16 MiB
)

// Header field offsets, big-endian.
const (
	offTag    = 0
	offLength = 1
	offSource = 5
	offTarget = 9
)

// Direction tells inbound frames from outbound ones in taps and metrics.
type Direction uint8

const (
	Inbound Direction = iota + 1
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "in"
	case Outbound:
		return "out"
	default:
		return "?"
	}
}
