// File: cmd/agentwire/send.go
// Author: momentics <momentics@gmail.com>
//
// send: connect, send one frame and print the reply.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/agentwire/agent"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		ef      engineFlags
		host    string
		service string
		from    uint32
		to      uint32
		timeout time.Duration
		tryAll  bool
		noWait  bool
	)
	cmd := &cobra.Command{
		Use:   "send [flags] MESSAGE...",
		Short: "Send one frame to a remote agent and print its reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			cfg := a.cfg
			cfg.Mode = agent.Client.String()
			ef.apply(fs, cfg)
			if changed(fs, "host") {
				cfg.Connect.Host = host
			}
			if changed(fs, "service") {
				cfg.Connect.Service = service
			}
			if changed(fs, "try-all") {
				cfg.Connect.TryAll = tryAll
			}

			e, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer e.close(a)

			peer := newReplyAgent(from)
			ag, err := agent.New(agent.Client, nil, append(e.opts, agent.WithClientDelegate(peer))...)
			if err != nil {
				return err
			}
			defer ag.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			s, err := ag.Connect(ctx, cfg.Connect.Host, cfg.Connect.Service)
			if err != nil {
				return err
			}
			payload := []byte(strings.Join(args, " "))
			if err := s.WriteData(from, to, payload); err != nil {
				return err
			}
			if noWait {
				return nil
			}

			select {
			case r := <-peer.replies:
				fmt.Fprintf(cmd.OutOrStdout(), "%d -> %d: %s\n", r.header.SourceAgentID, r.header.TargetAgentID, r.payload)
				return nil
			case <-peer.closed:
				return errors.New("connection closed before a reply arrived")
			case <-ctx.Done():
				return fmt.Errorf("no reply within %s", timeout)
			}
		},
	}
	fs := cmd.Flags()
	ef.register(fs)
	fs.StringVar(&host, "host", "", "remote host")
	fs.StringVar(&service, "service", "", "remote port or service name")
	fs.Uint32Var(&from, "from", 1, "source agent id")
	fs.Uint32Var(&to, "to", 5, "target agent id")
	fs.DurationVar(&timeout, "timeout", 5*time.Second, "overall time allowed for connect and reply")
	fs.BoolVar(&tryAll, "try-all", false, "keep trying other addresses after a failed connect")
	fs.BoolVar(&noWait, "no-wait", false, "do not wait for a reply")
	return cmd
}
