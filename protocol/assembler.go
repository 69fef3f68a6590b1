// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Incremental frame assembly over arbitrarily fragmented input.

package protocol

// Assembler rebuilds one frame at a time from a byte stream that may be
// cut anywhere, including inside the header. It is not safe for
// concurrent use.
type Assembler struct {
	Frame Frame

	// MaxPayload rejects headers declaring larger payloads; 0 disables.
	MaxPayload uint32

	hdr       [HeaderSize]byte
	nhdr      int
	hasHeader bool
}

// NewAssembler returns an assembler in the reset state.
func NewAssembler(maxPayload uint32) *Assembler {
	a := &Assembler{MaxPayload: maxPayload}
	a.Reset()
	return a
}

// Reset discards any partial header or payload.
func (a *Assembler) Reset() {
	a.Frame.Reset()
	a.nhdr = 0
	a.hasHeader = false
}

// HeaderReady reports whether the current frame's header has been parsed.
func (a *Assembler) HeaderReady() bool { return a.hasHeader }

// Complete reports whether the current frame is complete.
func (a *Assembler) Complete() bool { return a.Frame.Complete() }

// Feed consumes bytes from p until the current frame completes or p is
// exhausted, and returns the number of bytes consumed. Bytes after a
// complete frame are left for the caller to feed once the frame has been
// taken or reset. A header declaring a zero-length payload is a keep-alive:
// it is consumed and the assembler starts over.
func (a *Assembler) Feed(p []byte) (int, error) {
	if a.Frame.Complete() {
		return 0, nil
	}
	n := 0
	if !a.hasHeader {
		c := copy(a.hdr[a.nhdr:], p)
		a.nhdr += c
		n += c
		if a.nhdr < HeaderSize {
			return n, nil
		}
		h, _ := ParseHeader(a.hdr[:])
		if err := h.Validate(a.MaxPayload); err != nil {
			return n, err
		}
		if h.PayloadLength == 0 {
			a.Reset()
			return n, nil
		}
		a.Frame.Header = h
		a.hasHeader = true
	}
	need := int(a.Frame.Header.PayloadLength) - len(a.Frame.Payload)
	take := len(p) - n
	if take > need {
		take = need
	}
	a.Frame.Payload = append(a.Frame.Payload, p[n:n+take]...)
	return n + take, nil
}

// Take returns a copy of the buffered frame and resets the assembler.
func (a *Assembler) Take() (Header, []byte) {
	h := a.Frame.Header
	out := make([]byte, len(a.Frame.Payload))
	copy(out, a.Frame.Payload)
	a.Reset()
	return h, out
}
