// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// capture_test.go — capture stream round trips, digests and header checks.
package capture_test

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/momentics/agentwire/internal/capture"
	"github.com/momentics/agentwire/protocol"
	"github.com/momentics/agentwire/session"
)

var _ session.Tap = (*capture.Recorder)(nil)

func header(src, dst uint32, payload []byte) protocol.Header {
	return protocol.NewFrame(src, dst, payload).Header
}

func readAll(t *testing.T, r *capture.Reader) []*capture.Record {
	t.Helper()
	var out []*capture.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, rec)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, comp := range []capture.Compression{capture.Zstd, capture.LZ4} {
		t.Run(comp.String(), func(t *testing.T) {
			var buf bytes.Buffer
			run := uuid.New()
			rec, err := capture.NewRecorder(&buf, capture.WithCompression(comp), capture.WithPayloads(true), capture.WithRunID(run))
			if err != nil {
				t.Fatalf("NewRecorder: %v", err)
			}
			payloads := [][]byte{[]byte("ping"), bytes.Repeat([]byte("x"), 4096), []byte("pong")}
			rec.Record(1, protocol.Inbound, header(9, 5, payloads[0]), payloads[0])
			rec.Record(1, protocol.Outbound, header(5, 9, payloads[1]), payloads[1])
			rec.Record(2, protocol.Inbound, header(7, 5, payloads[2]), payloads[2])
			if n, b := rec.Stats(); n != 3 || b != int64(8+4096) {
				t.Fatalf("Stats = %d, %d", n, b)
			}
			if err := rec.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := capture.NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()
			if r.Compression() != comp {
				t.Fatalf("Compression = %v, want %v", r.Compression(), comp)
			}
			got := readAll(t, r)
			if len(got) != 3 {
				t.Fatalf("read %d records, want 3", len(got))
			}
			for i, g := range got {
				if g.Run != run {
					t.Errorf("record %d run = %v", i, g.Run)
				}
				if !bytes.Equal(g.Payload, payloads[i]) {
					t.Errorf("record %d payload mismatch", i)
				}
				if err := g.Verify(); err != nil {
					t.Errorf("record %d Verify: %v", i, err)
				}
				if g.Time().IsZero() {
					t.Errorf("record %d has no time", i)
				}
			}
			if got[1].Dir != protocol.Outbound || got[1].Source != 5 || got[1].Target != 9 || got[2].Session != 2 {
				t.Errorf("unexpected record fields: %+v %+v", got[1], got[2])
			}
		})
	}
}

func TestDigestOnlyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.awc")
	rec, err := capture.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	rec.Record(3, protocol.Inbound, header(1, 2, []byte("secret")), []byte("secret"))
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	// Records after Close are dropped.
	rec.Record(3, protocol.Inbound, header(1, 2, []byte("late")), []byte("late"))

	r, err := capture.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got := readAll(t, r)
	if len(got) != 1 {
		t.Fatalf("read %d records, want 1", len(got))
	}
	if got[0].Payload != nil {
		t.Fatal("payload stored without WithPayloads")
	}
	if len(got[0].Digest) != 32 || got[0].Length != 6 {
		t.Fatalf("digest len %d, length %d", len(got[0].Digest), got[0].Length)
	}
	if err := got[0].Verify(); !errors.Is(err, capture.ErrNoPayload) {
		t.Fatalf("Verify = %v, want ErrNoPayload", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	var buf bytes.Buffer
	rec, err := capture.NewRecorder(&buf, capture.WithPayloads(true))
	if err != nil {
		t.Fatal(err)
	}
	rec.Record(1, protocol.Inbound, header(1, 2, []byte("hello")), []byte("hello"))
	rec.Close()

	r, err := capture.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got := readAll(t, r)
	got[0].Payload[0] = 'j'
	if err := got[0].Verify(); !errors.Is(err, capture.ErrDigestMismatch) {
		t.Fatalf("Verify = %v, want ErrDigestMismatch", err)
	}
	got[0].Payload = got[0].Payload[:3]
	if err := got[0].Verify(); !errors.Is(err, capture.ErrDigestMismatch) {
		t.Fatalf("Verify short = %v, want ErrDigestMismatch", err)
	}
}

func TestReaderRejectsBadHeaders(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want error
	}{
		"short":   {[]byte("AW"), capture.ErrBadMagic},
		"magic":   {[]byte("NOPE\x01\x02"), capture.ErrBadMagic},
		"version": {[]byte("AWCP\x09\x02"), capture.ErrBadVersion},
	}
	for name, tc := range cases {
		if _, err := capture.NewReader(bytes.NewReader(tc.data)); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", name, err, tc.want)
		}
	}
	if _, err := capture.NewReader(bytes.NewReader([]byte("AWCP\x01\x7f"))); err == nil {
		t.Error("unknown compression accepted")
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]capture.Compression{"zstd": capture.Zstd, "lz4": capture.LZ4, "": capture.Zstd} {
		got, err := capture.ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := capture.ParseCompression("gzip"); err == nil {
		t.Error("gzip accepted")
	}
	if _, err := capture.NewRecorder(io.Discard, capture.WithCompression(9)); err == nil {
		t.Error("NewRecorder accepted unknown compression")
	}
}
