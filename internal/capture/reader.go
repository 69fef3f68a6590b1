// File: internal/capture/reader.go
// Author: momentics <momentics@gmail.com>
//
// Reader iterates the records of a capture stream.

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Reader decodes records in file order.
type Reader struct {
	comp    Compression
	dec     *cbor.Decoder
	release func()
	file    *os.File
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader checks the header of src and prepares to decode records.
func NewReader(src io.Reader) (*Reader, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, ErrBadMagic
	}
	if hdr[len(magic)] != version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, hdr[len(magic)])
	}

	r := &Reader{comp: Compression(hdr[len(magic)+1]), release: func() {}}
	var body io.Reader
	switch r.comp {
	case Zstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("capture: zstd: %w", err)
		}
		body, r.release = zr, zr.Close
	case LZ4:
		body = lz4.NewReader(src)
	default:
		return nil, fmt.Errorf("capture: unsupported compression %s", r.comp)
	}
	r.dec = decMode.NewDecoder(body)
	return r, nil
}

// Compression reports the stream codec.
func (r *Reader) Compression() Compression { return r.comp }

// Next returns the next record or io.EOF after the last one.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("capture: decoding record: %w", err)
	}
	return &rec, nil
}

// Close releases the decompressor and the file opened by Open.
func (r *Reader) Close() error {
	r.release()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
