// File: cmd/agentwire/version.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/momentics/agentwire/protocol"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show agentwire version",
		Args:  cobra.NoArgs,
		// No config or logger needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "agentwire version %s (%s, frame tag 0x%02x)\n",
				version, runtime.Version(), protocol.Tag)
			return nil
		},
	}
}
