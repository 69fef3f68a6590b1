// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// control_test.go — registry, probes and exposition format.
package control_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/momentics/agentwire/control"
)

func TestMetricsRegistry_Basic(t *testing.T) {
	reg := control.NewMetricsRegistry()
	reg.Set("foo.count", int64(42))
	reg.Set("bar.status", "ok")

	metrics := reg.GetSnapshot()
	if metrics["foo.count"] != int64(42) {
		t.Error("MetricsRegistry: value mismatch")
	}
	if metrics["bar.status"] != "ok" {
		t.Error("MetricsRegistry: string value mismatch")
	}
}

func TestMetricsRegistry_ConcurrentCounters(t *testing.T) {
	reg := control.NewMetricsRegistry()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				reg.Inc(control.FramesIn)
				reg.Add(control.BytesIn, 10)
			}
		}()
	}
	wg.Wait()
	if got := reg.Counter(control.FramesIn); got != 8000 {
		t.Errorf("frames_in = %d", got)
	}
	if got := reg.GetSnapshot()[control.BytesIn]; got != int64(80000) {
		t.Errorf("bytes_in = %v", got)
	}
	if reg.Updated().IsZero() {
		t.Error("Updated not recorded")
	}
}

func TestMetricsRegistry_NilIsNoop(t *testing.T) {
	var reg *control.MetricsRegistry
	reg.Inc(control.FramesOut)
	reg.Set("x", 1)
	if reg.Counter(control.FramesOut) != 0 || len(reg.GetSnapshot()) != 0 {
		t.Error("nil registry recorded values")
	}
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("answer", func() any { return 42 })
	state := dp.DumpState()
	if state["answer"] != 42 || state["platform.cpus"] == nil {
		t.Fatalf("state = %v", state)
	}
	dp.UnregisterProbe("answer")
	if _, ok := dp.DumpState()["answer"]; ok {
		t.Error("probe not removed")
	}
}

func TestWritePrometheus(t *testing.T) {
	var buf bytes.Buffer
	err := control.WritePrometheus(&buf, "agentwire", map[string]any{
		control.SessionsActive: int64(3),
		control.FramesIn:       int64(7),
		"label":                "skip me",
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"# TYPE agentwire_sessions_active gauge\nagentwire_sessions_active 3\n",
		"# TYPE agentwire_frames_in_total counter\nagentwire_frames_in_total 7\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "label") {
		t.Error("non-numeric value exported")
	}
}

func TestHandler(t *testing.T) {
	reg := control.NewMetricsRegistry()
	reg.Inc(control.SessionsTotal)
	dp := control.NewDebugProbes()
	dp.RegisterProbe("sessions", func() any { return []string{"session.1#5"} })
	h := control.Handler("agentwire", reg, dp)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "agentwire_sessions_total 1") {
		t.Errorf("metrics: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/state", nil))
	if !strings.Contains(rec.Body.String(), "session.1#5") {
		t.Errorf("debug state: %s", rec.Body.String())
	}
}
