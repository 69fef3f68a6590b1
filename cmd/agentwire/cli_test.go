// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// cli_test.go — command wiring: version, capture dump, flag validation.
package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momentics/agentwire/config"
	"github.com/momentics/agentwire/internal/capture"
	"github.com/momentics/agentwire/protocol"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvVar, "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "agentwire version "+version) || !strings.Contains(out, "0xbb") {
		t.Fatalf("version output = %q", out)
	}
}

func TestCaptureDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.awc")
	rec, err := capture.Create(path, capture.WithCompression(capture.LZ4), capture.WithPayloads(true))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"ping", "pong"} {
		f := protocol.NewFrame(1, 5, []byte(p))
		rec.Record(7, protocol.Inbound, f.Header, f.Payload)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "capture", "dump", "--verify", path)
	if err != nil {
		t.Fatalf("capture dump: %v", err)
	}
	if !strings.Contains(out, "run "+rec.RunID().String()+" (lz4)") {
		t.Errorf("missing run line:\n%s", out)
	}
	if strings.Count(out, "session=7 in  1 -> 5 4 B") != 2 || strings.Count(out, " ok\n") != 2 {
		t.Errorf("unexpected records:\n%s", out)
	}
	if !strings.Contains(out, "2 records, 8 B of payload") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestCaptureDumpRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("definitely not a capture"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "capture", "dump", path); !errors.Is(err, capture.ErrBadMagic) {
		t.Fatalf("dump err = %v, want ErrBadMagic", err)
	}
}

func TestBadLogFormat(t *testing.T) {
	_, err := run(t, "--log-format", "xml", "capture", "dump", "x")
	if err == nil || !strings.Contains(err.Error(), "log format") {
		t.Fatalf("err = %v", err)
	}
}

func TestSendValidatesConfig(t *testing.T) {
	_, err := run(t, "send", "--write-policy", "drop", "hello")
	if err == nil || !strings.Contains(err.Error(), "write_policy") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("json log = %q", buf.String())
	}
	if _, err := newLogger(io.Discard, "loud", "text"); err == nil {
		t.Fatal("bad level accepted")
	}
}
