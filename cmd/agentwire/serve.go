// File: cmd/agentwire/serve.go
// Author: momentics <momentics@gmail.com>
//
// serve: run a server agent hosting echo agents.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/agentwire/agent"
	"github.com/momentics/agentwire/control"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		ef          engineFlags
		host        string
		service     string
		backlog     int
		agentIDs    []uint
		prefix      string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for connections and echo frames back to their sender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := cmd.Flags()
			cfg := a.cfg
			cfg.Mode = agent.Server.String()
			ef.apply(fs, cfg)
			if changed(fs, "host") {
				cfg.Listen.Host = host
			}
			if changed(fs, "service") {
				cfg.Listen.Service = service
			}
			if changed(fs, "backlog") {
				cfg.Listen.Backlog = backlog
			}
			if changed(fs, "metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if len(agentIDs) == 0 {
				return errors.New("at least one --agent id is required")
			}

			e, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer e.close(a)

			reg := agent.NewRegistry()
			for _, id := range agentIDs {
				if err := reg.Register(&echoAgent{id: uint32(id), prefix: []byte(prefix), log: a.log}); err != nil {
					return err
				}
			}
			ag, err := agent.New(agent.Server, reg, e.opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := ag.Listen(ctx, cfg.Listen.Host, cfg.Listen.Service); err != nil {
				_ = ag.Close()
				return err
			}
			for _, ap := range ag.Addrs() {
				fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ap)
			}

			if cfg.Metrics.Addr != "" {
				probes := control.NewDebugProbes()
				control.RegisterPlatformProbes(probes)
				ag.RegisterProbes(probes)
				srv := &http.Server{
					Addr:              cfg.Metrics.Addr,
					Handler:           control.Handler(cfg.Metrics.Prefix, e.metrics, probes),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
					}
				}()
				a.log.Info("serving metrics", "addr", cfg.Metrics.Addr)
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			<-ctx.Done()
			a.log.Info("shutting down", "sessions", ag.Sessions())
			return ag.Close()
		},
	}
	fs := cmd.Flags()
	ef.register(fs)
	fs.StringVar(&host, "host", "", "listen host (empty for all interfaces)")
	fs.StringVar(&service, "service", "", "listen port or service name")
	fs.IntVar(&backlog, "backlog", 0, "listen backlog")
	fs.UintSliceVar(&agentIDs, "agent", []uint{5}, "echo agent id to host (repeatable)")
	fs.StringVar(&prefix, "reply-prefix", "", "bytes prepended to every echoed payload")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /debug/state on this address")
	return cmd
}
