// File: cmd/agentwire/capture.go
// Author: momentics <momentics@gmail.com>
//
// capture dump: print the records of a capture file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/momentics/agentwire/internal/capture"
)

func newCaptureCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "capture",
		Short: "Inspect frame capture files",
	}
	root.AddCommand(newCaptureDumpCmd(a))
	return root
}

func newCaptureDumpCmd(a *app) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print every record of a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := capture.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			return dumpCapture(cmd.OutOrStdout(), r, verify)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "check stored payloads against their digests")
	return cmd
}

func dumpCapture(w io.Writer, r *capture.Reader, verify bool) error {
	var (
		count, bad int
		total      uint64
		run        string
	)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if run == "" {
			run = rec.Run.String()
			fmt.Fprintf(w, "run %s (%s)\n", run, r.Compression())
		}
		count++
		total += uint64(rec.Length)

		status := ""
		if verify {
			switch err := rec.Verify(); {
			case err == nil:
				status = " ok"
			case errors.Is(err, capture.ErrNoPayload):
				status = " no-payload"
			default:
				status = " CORRUPT"
				bad++
			}
		}
		fmt.Fprintf(w, "%s session=%d %-3s %d -> %d %s blake3:%s%s\n",
			rec.Time().UTC().Format(time.RFC3339Nano), rec.Session, rec.Dir,
			rec.Source, rec.Target, humanize.Bytes(uint64(rec.Length)),
			hex.EncodeToString(rec.Digest[:min(8, len(rec.Digest))]), status)
	}
	fmt.Fprintf(w, "%d records, %s of payload\n", count, humanize.Bytes(total))
	if bad > 0 {
		return fmt.Errorf("%d records failed verification", bad)
	}
	return nil
}
