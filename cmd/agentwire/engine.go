// File: cmd/agentwire/engine.go
// Author: momentics <momentics@gmail.com>
//
// Turns a validated config into agent options plus the capture recorder.

package main

import (
	"github.com/dustin/go-humanize"

	"github.com/momentics/agentwire/agent"
	"github.com/momentics/agentwire/control"
	"github.com/momentics/agentwire/internal/capture"
)

type engine struct {
	opts    []agent.Option
	metrics *control.MetricsRegistry
	rec     *capture.Recorder
}

func (a *app) buildEngine() (*engine, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := a.cfg.AgentOptions()
	if err != nil {
		return nil, err
	}
	e := &engine{metrics: control.NewMetricsRegistry()}
	opts = append(opts, agent.WithLogger(a.log), agent.WithMetrics(e.metrics))

	if c := a.cfg.Capture; c.Path != "" {
		comp, err := capture.ParseCompression(c.Compression)
		if err != nil {
			return nil, err
		}
		e.rec, err = capture.Create(c.Path,
			capture.WithCompression(comp),
			capture.WithPayloads(c.Payloads),
			capture.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		a.log.Info("capturing frames", "path", c.Path, "run", e.rec.RunID().String(), "compression", comp.String())
		opts = append(opts, agent.WithTap(e.rec))
	}
	e.opts = opts
	return e, nil
}

// close finishes the capture file, if any.
func (e *engine) close(a *app) error {
	if e.rec == nil {
		return nil
	}
	records, size := e.rec.Stats()
	err := e.rec.Close()
	a.log.Info("capture closed", "records", records, "payload", humanize.Bytes(uint64(size)))
	return err
}
