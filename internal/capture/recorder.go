// File: internal/capture/recorder.go
// Author: momentics <momentics@gmail.com>
//
// Recorder writes frames seen by session taps into a capture stream.

package capture

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/momentics/agentwire/protocol"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithCompression selects the stream codec. Zstd is the default.
func WithCompression(c Compression) Option {
	return func(r *Recorder) { r.comp = c }
}

// WithPayloads stores payload bytes in every record.
func WithPayloads(on bool) Option {
	return func(r *Recorder) { r.payloads = on }
}

// WithLogger reports the first write failure.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id uuid.UUID) Option {
	return func(r *Recorder) { r.run = id }
}

// Recorder is a session tap. It is safe for concurrent use by many
// sessions; records are appended in the order Record is called.
type Recorder struct {
	comp     Compression
	payloads bool
	run      uuid.UUID
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	out     io.Closer
	zw      io.WriteCloser
	enc     *cbor.Encoder
	err     error
	records int64
	bytes   int64
}

// Create opens path for writing and starts a capture stream in it.
func Create(path string, opts ...Option) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	r, err := NewRecorder(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.out = f
	return r, nil
}

// NewRecorder writes the file header to w and returns a recorder
// appending records after it. Close does not close w.
func NewRecorder(w io.Writer, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		comp: Zstd,
		run:  uuid.New(),
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	switch r.comp {
	case Zstd, LZ4:
	default:
		return nil, fmt.Errorf("capture: unsupported compression %s", r.comp)
	}
	hdr := append([]byte(magic), version, byte(r.comp))
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("capture: writing header: %w", err)
	}

	switch r.comp {
	case Zstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("capture: zstd: %w", err)
		}
		r.zw = zw
	case LZ4:
		r.zw = lz4.NewWriter(w)
	}
	r.enc = encMode.NewEncoder(r.zw)
	return r, nil
}

// RunID identifies this capture.
func (r *Recorder) RunID() uuid.UUID { return r.run }

// Record appends one frame. The payload is hashed and, if configured,
// encoded into the record; it is not retained.
func (r *Recorder) Record(sessionID uint32, dir protocol.Direction, h protocol.Header, payload []byte) {
	sum := blake3.Sum256(payload)
	rec := Record{
		Run:      r.run,
		Session:  sessionID,
		Dir:      dir,
		UnixNano: r.now().UnixNano(),
		Source:   h.SourceAgentID,
		Target:   h.TargetAgentID,
		Length:   h.PayloadLength,
		Digest:   sum[:],
	}
	if r.payloads {
		rec.Payload = payload
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(&rec); err != nil {
		r.err = err
		r.log.Error("capture write failed; recording stopped", "run", r.run.String(), "err", err)
		return
	}
	r.records++
	r.bytes += int64(len(payload))
}

// Stats returns the number of records written and the payload bytes
// they describe.
func (r *Recorder) Stats() (records, payloadBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records, r.bytes
}

// Err returns the error that stopped recording, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes the compressed stream and closes the file opened by
// Create. Further records are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zw == nil {
		return nil
	}
	err := r.zw.Close()
	r.zw = nil
	if r.err == nil {
		r.err = io.ErrClosedPipe
	}
	if r.out != nil {
		if cerr := r.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
