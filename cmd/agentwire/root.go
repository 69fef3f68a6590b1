// File: cmd/agentwire/root.go
// Author: momentics <momentics@gmail.com>
//
// Root command: config loading and logger setup shared by subcommands.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/momentics/agentwire/config"
)

// app carries state resolved in PersistentPreRunE.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "agentwire",
		Short: "Agent frame engine: serve echo agents, send frames, inspect captures",
		Long: `agentwire moves length-prefixed agent frames over TCP.

Configuration is read from the file given by --config or the
AGENTWIRE_CONFIG environment variable; without either, built-in
defaults apply. Command-line flags override file values.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $"+config.EnvVar+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(newServeCmd(a), newSendCmd(a), newCaptureCmd(a), newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.cfgFile
	if path == "" {
		path = os.Getenv(config.EnvVar)
	}
	if path == "" {
		a.cfg = config.Default()
	} else {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}

	pf := cmd.Flags()
	if changed(pf, "log-level") {
		a.cfg.Log.Level = a.logLevel
	}
	if changed(pf, "log-format") {
		a.cfg.Log.Format = a.logFormat
	}
	log, err := newLogger(cmd.ErrOrStderr(), a.cfg.Log.Level, a.cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log
	slog.SetDefault(log)
	return nil
}

func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}

// newLogger builds a tint console handler for text and slog's JSON
// handler for json.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "", "text":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	}
	return nil, fmt.Errorf("log format must be text or json, got %q", format)
}
