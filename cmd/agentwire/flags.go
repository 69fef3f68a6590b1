// File: cmd/agentwire/flags.go
// Author: momentics <momentics@gmail.com>
//
// Flags shared by serve and send. Values only override the loaded config
// when given on the command line.

package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/momentics/agentwire/config"
)

type engineFlags struct {
	network      string
	workers      int
	pinWorkers   bool
	maxPayload   uint32
	maxPending   int
	writePolicy  string
	idleTimeout  time.Duration
	closeTimeout time.Duration
	capturePath  string
	captureComp  string
	capturePay   bool
}

func (f *engineFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.network, "network", "", "network: tcp, tcp4, tcp6")
	fs.IntVar(&f.workers, "workers", 0, "worker pool size (0 runs sessions on goroutines)")
	fs.BoolVar(&f.pinWorkers, "pin-workers", false, "bind each worker to one CPU")
	fs.Uint32Var(&f.maxPayload, "max-payload", 0, "largest accepted frame payload in bytes")
	fs.IntVar(&f.maxPending, "max-pending-writes", 0, "outbound frames queued per session")
	fs.StringVar(&f.writePolicy, "write-policy", "", "queue or overwrite")
	fs.DurationVar(&f.idleTimeout, "idle-timeout", 0, "close sessions idle this long (0 disables)")
	fs.DurationVar(&f.closeTimeout, "close-timeout", 0, "how long shutdown waits for sessions")
	fs.StringVar(&f.capturePath, "capture", "", "record frames to this capture file")
	fs.StringVar(&f.captureComp, "capture-compression", "", "capture compression: zstd, lz4")
	fs.BoolVar(&f.capturePay, "capture-payloads", false, "store payload bytes in the capture")
}

func (f *engineFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if changed(fs, "network") {
		cfg.Network = f.network
	}
	if changed(fs, "workers") {
		cfg.Workers = f.workers
	}
	if changed(fs, "pin-workers") {
		cfg.PinWorkers = f.pinWorkers
	}
	if changed(fs, "max-payload") {
		cfg.Session.MaxPayload = f.maxPayload
	}
	if changed(fs, "max-pending-writes") {
		cfg.Session.MaxPendingWrites = f.maxPending
	}
	if changed(fs, "write-policy") {
		cfg.Session.WritePolicy = f.writePolicy
	}
	if changed(fs, "idle-timeout") {
		cfg.Session.IdleTimeout = f.idleTimeout.String()
	}
	if changed(fs, "close-timeout") {
		cfg.CloseTimeout = f.closeTimeout.String()
	}
	if changed(fs, "capture") {
		cfg.Capture.Path = f.capturePath
	}
	if changed(fs, "capture-compression") {
		cfg.Capture.Compression = f.captureComp
	}
	if changed(fs, "capture-payloads") {
		cfg.Capture.Payloads = f.capturePay
	}
}
