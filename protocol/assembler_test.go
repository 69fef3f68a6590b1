// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// assembler_test.go — fragmented input must assemble exactly like whole input.
package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/agentwire/protocol"
)

// feedAll pushes the chunks through a in order and
// collects every completed frame.
func feedAll(t *testing.T, a *protocol.Assembler, chunks [][]byte) []*protocol.Frame {
	t.Helper()
	var out []*protocol.Frame
	for _, c := range chunks {
		for len(c) > 0 {
			n, err := a.Feed(c)
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			c = c[n:]
			if a.Complete() {
				h, p := a.Take()
				out = append(out, &protocol.Frame{Header: h, Payload: p})
			}
		}
	}
	return out
}

func TestAssemblerEverySplitOffset(t *testing.T) {
	stream := protocol.NewFrame(11, 22, []byte("0123456789")).Serialize()
	stream = append(stream, protocol.NewFrame(33, 44, []byte("xyz")).Serialize()...)

	whole := feedAll(t, protocol.NewAssembler(0), [][]byte{stream})
	if len(whole) != 2 {
		t.Fatalf("whole feed produced %d frames, want 2", len(whole))
	}

	for i := 1; i < len(stream); i++ {
		got := feedAll(t, protocol.NewAssembler(0), [][]byte{stream[:i], stream[i:]})
		if len(got) != len(whole) {
			t.Fatalf("split at %d: %d frames, want %d", i, len(got), len(whole))
		}
		for k := range got {
			if got[k].Header != whole[k].Header || !bytes.Equal(got[k].Payload, whole[k].Payload) {
				t.Errorf("split at %d frame %d: got %v, want %v", i, k, got[k], whole[k])
			}
		}
	}
}

func TestAssemblerByteAtATime(t *testing.T) {
	stream := protocol.NewFrame(1, 2, []byte("fragmented")).Serialize()
	chunks := make([][]byte, len(stream))
	for i := range stream {
		chunks[i] = stream[i : i+1]
	}
	got := feedAll(t, protocol.NewAssembler(0), chunks)
	if len(got) != 1 || string(got[0].Payload) != "fragmented" {
		t.Fatalf("got %v", got)
	}
}

func TestAssemblerHeaderReady(t *testing.T) {
	a := protocol.NewAssembler(0)
	stream := protocol.NewFrame(1, 5, []byte("ab")).Serialize()
	if _, err := a.Feed(stream[:protocol.HeaderSize-1]); err != nil {
		t.Fatal(err)
	}
	if a.HeaderReady() {
		t.Fatal("header ready before 13 bytes")
	}
	if _, err := a.Feed(stream[protocol.HeaderSize-1 : protocol.HeaderSize]); err != nil {
		t.Fatal(err)
	}
	if !a.HeaderReady() || a.Frame.Header.TargetAgentID != 5 {
		t.Fatalf("header = %+v ready=%v", a.Frame.Header, a.HeaderReady())
	}
	if a.Complete() {
		t.Fatal("complete without payload")
	}
}

func TestAssemblerSkipsKeepAlive(t *testing.T) {
	ka := protocol.Header{Tag: protocol.Tag}
	stream := ka.AppendTo(nil)
	stream = append(stream, protocol.NewFrame(1, 2, []byte("z")).Serialize()...)
	got := feedAll(t, protocol.NewAssembler(0), [][]byte{stream})
	if len(got) != 1 || string(got[0].Payload) != "z" {
		t.Fatalf("got %v", got)
	}
}

func TestAssemblerStopsAtCompleteFrame(t *testing.T) {
	a := protocol.NewAssembler(0)
	first := protocol.NewFrame(1, 2, []byte("one")).Serialize()
	stream := append(first, protocol.NewFrame(1, 2, []byte("two")).Serialize()...)
	n, err := a.Feed(stream)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(first) || !a.Complete() {
		t.Fatalf("consumed %d, complete=%v", n, a.Complete())
	}
	if n2, _ := a.Feed(stream[n:]); n2 != 0 {
		t.Errorf("fed past a complete frame: %d", n2)
	}
}

func TestAssemblerRejects(t *testing.T) {
	bad := protocol.NewFrame(1, 2, []byte("x")).Serialize()
	bad[0] = 0x00
	if _, err := protocol.NewAssembler(0).Feed(bad); !errors.Is(err, protocol.ErrBadTag) {
		t.Errorf("bad tag: err = %v", err)
	}
	big := protocol.NewFrame(1, 2, make([]byte, 10)).Serialize()
	if _, err := protocol.NewAssembler(4).Feed(big); !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Errorf("oversize: err = %v", err)
	}
}
