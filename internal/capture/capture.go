// Package capture
// Author: momentics <momentics@gmail.com>
//
// Frame capture files.
//
// A capture file starts with the 4-byte magic "AWCP", a version byte and a
// compression tag byte. The rest is a single compressed stream holding a
// sequence of CBOR records, one per frame seen by a session tap. Records
// always carry a BLAKE3 digest of the payload; the payload itself is
// stored only when the recorder was asked to keep it.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/momentics/agentwire/protocol"
)

const (
	magic   = "AWCP"
	version = 1

	headerSize = len(magic) + 2
)

var (
	ErrBadMagic       = errors.New("capture: not a capture file")
	ErrBadVersion     = errors.New("capture: unsupported version")
	ErrNoPayload      = errors.New("capture: record has no payload")
	ErrDigestMismatch = errors.New("capture: payload digest mismatch")
)

// Compression identifies the stream codec. The values are stored in the
// file header.
type Compression uint8

const (
	LZ4  Compression = 1
	Zstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses "zstd" or "lz4".
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "zstd", "":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	}
	return 0, fmt.Errorf("capture: unknown compression %q", name)
}

// Record is one captured frame.
type Record struct {
	Run     uuid.UUID          `cbor:"1,keyasint"`
	Session uint32             `cbor:"2,keyasint"`
	Dir     protocol.Direction `cbor:"3,keyasint"`
	// UnixNano is the capture time in nanoseconds.
	UnixNano int64  `cbor:"4,keyasint"`
	Source   uint32 `cbor:"5,keyasint"`
	Target   uint32 `cbor:"6,keyasint"`
	Length   uint32 `cbor:"7,keyasint"`
	Digest   []byte `cbor:"8,keyasint"`
	Payload  []byte `cbor:"9,keyasint,omitempty"`
}

// Time returns the capture time.
func (r *Record) Time() time.Time { return time.Unix(0, r.UnixNano) }

// Verify checks the stored payload against the length and digest.
func (r *Record) Verify() error {
	if r.Payload == nil {
		return ErrNoPayload
	}
	if uint32(len(r.Payload)) != r.Length {
		return fmt.Errorf("%w: length %d, header says %d", ErrDigestMismatch, len(r.Payload), r.Length)
	}
	sum := blake3.Sum256(r.Payload)
	if string(sum[:]) != string(r.Digest) {
		return ErrDigestMismatch
	}
	return nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("capture: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("capture: CBOR decoder initialization failed: " + err.Error())
	}
}
