// File: config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package config loads agentwire configuration.
//
// Configuration comes from a single file named by the AGENTWIRE_CONFIG
// environment variable or the --config flag. YAML is the native format;
// files ending in .json or .jsonc are read as JSON with comments and
// trailing commas allowed. Durations are strings such as "5s".
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/momentics/agentwire/agent"
	"github.com/momentics/agentwire/session"
)

// EnvVar names the environment variable Load reads.
const EnvVar = "AGENTWIRE_CONFIG"

// Config is the top-level agentwire configuration.
type Config struct {
	// Mode is "server" or "client".
	Mode string `yaml:"mode"`

	// Network is "tcp", "tcp4" or "tcp6".
	Network string `yaml:"network"`

	Listen  ListenConfig  `yaml:"listen"`
	Connect ConnectConfig `yaml:"connect"`
	Session SessionConfig `yaml:"session"`

	// Workers sizes the shared worker pool; 0 runs queues on goroutines.
	Workers int `yaml:"workers"`

	// PinWorkers binds each worker to one CPU.
	PinWorkers bool `yaml:"pin_workers"`

	// CloseTimeout bounds how long shutdown waits for sessions.
	CloseTimeout string `yaml:"close_timeout"`

	Capture CaptureConfig `yaml:"capture"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ListenConfig configures a server agent's listening sockets.
type ListenConfig struct {
	// Host is empty for the wildcard address.
	Host    string `yaml:"host"`
	Service string `yaml:"service"`
	Backlog int    `yaml:"backlog"`
}

// ConnectConfig configures a client agent's outbound connections.
type ConnectConfig struct {
	Host    string `yaml:"host"`
	Service string `yaml:"service"`

	// Timeout bounds each attempt; empty waits indefinitely.
	Timeout string `yaml:"timeout"`

	// TryAll keeps going after a failed candidate.
	TryAll bool `yaml:"try_all"`
}

// SessionConfig tunes every session an agent creates.
type SessionConfig struct {
	ReadBufferSize   int    `yaml:"read_buffer_size"`
	MaxPayload       uint32 `yaml:"max_payload"`
	MaxPendingWrites int    `yaml:"max_pending_writes"`

	// WritePolicy is "queue" or "overwrite".
	WritePolicy string `yaml:"write_policy"`

	// IdleTimeout closes quiet sessions; empty disables it.
	IdleTimeout string `yaml:"idle_timeout"`
}

// CaptureConfig enables the frame capture file.
type CaptureConfig struct {
	// Path is the capture file; empty disables capture. ${VAR} and
	// ${VAR:-default} are expanded.
	Path string `yaml:"path"`

	// Compression is "zstd" or "lz4".
	Compression string `yaml:"compression"`

	// Payloads stores payload bytes next to their digests.
	Payloads bool `yaml:"payloads"`
}

// MetricsConfig exposes counters over HTTP.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration files are merged into.
func Default() *Config {
	return &Config{
		Mode:    "server",
		Network: agent.DefaultNetwork,
		Listen: ListenConfig{
			Host:    "",
			Service: "7700",
			Backlog: agent.DefaultBacklog,
		},
		Connect: ConnectConfig{
			Host:    "127.0.0.1",
			Service: "7700",
			Timeout: "5s",
		},
		Session: SessionConfig{
			ReadBufferSize:   session.DefaultReadBufferSize,
			MaxPendingWrites: session.DefaultMaxPendingWrites,
			WritePolicy:      session.WriteQueue.String(),
		},
		CloseTimeout: agent.DefaultCloseTimeout.String(),
		Capture: CaptureConfig{
			Compression: "zstd",
		},
		Metrics: MetricsConfig{
			Prefix: "agentwire",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the file named by AGENTWIRE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your agentwire config file, or use --config flag", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads path over Default. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := cfg.decode(path, data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *Config) expandVariables() {
	c.Capture.Path = expandVars(c.Capture.Path)
}

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := agent.ParseMode(c.Mode); err != nil {
		errs = append(errs, fmt.Errorf("mode: %w", err))
	}
	switch c.Network {
	case "tcp", "tcp4", "tcp6":
	default:
		errs = append(errs, fmt.Errorf("network must be one of tcp, tcp4, tcp6, got %q", c.Network))
	}

	switch c.Mode {
	case "server":
		if c.Listen.Service == "" {
			errs = append(errs, errors.New("listen.service is required in server mode"))
		}
	case "client":
		if c.Connect.Service == "" {
			errs = append(errs, errors.New("connect.service is required in client mode"))
		}
	}
	if c.Listen.Backlog < 0 {
		errs = append(errs, fmt.Errorf("listen.backlog must not be negative, got %d", c.Listen.Backlog))
	}

	if c.Session.ReadBufferSize < 0 {
		errs = append(errs, fmt.Errorf("session.read_buffer_size must not be negative, got %d", c.Session.ReadBufferSize))
	}
	if c.Session.MaxPendingWrites < 0 {
		errs = append(errs, fmt.Errorf("session.max_pending_writes must not be negative, got %d", c.Session.MaxPendingWrites))
	}
	if _, err := session.ParseWritePolicy(c.Session.WritePolicy); err != nil {
		errs = append(errs, fmt.Errorf("session.write_policy: %w", err))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}

	for name, v := range map[string]string{
		"connect.timeout":      c.Connect.Timeout,
		"session.idle_timeout": c.Session.IdleTimeout,
		"close_timeout":        c.CloseTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	switch c.Capture.Compression {
	case "zstd", "lz4":
	default:
		errs = append(errs, fmt.Errorf("capture.compression must be zstd or lz4, got %q", c.Capture.Compression))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// AgentOptions converts the transport and session settings into agent
// options. Logger, metrics and capture are wired by the caller.
func (c *Config) AgentOptions() ([]agent.Option, error) {
	policy, err := session.ParseWritePolicy(c.Session.WritePolicy)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := parseDuration(c.Connect.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect.timeout: %w", err)
	}
	idle, err := parseDuration(c.Session.IdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("session.idle_timeout: %w", err)
	}
	closeTimeout, err := parseDuration(c.CloseTimeout)
	if err != nil {
		return nil, fmt.Errorf("close_timeout: %w", err)
	}
	return []agent.Option{
		agent.WithNetwork(c.Network),
		agent.WithBacklog(c.Listen.Backlog),
		agent.WithConnectTimeout(connectTimeout),
		agent.WithConnectTryAll(c.Connect.TryAll),
		agent.WithReadBufferSize(c.Session.ReadBufferSize),
		agent.WithMaxPayload(c.Session.MaxPayload),
		agent.WithMaxPendingWrites(c.Session.MaxPendingWrites),
		agent.WithWritePolicy(policy),
		agent.WithIdleTimeout(idle),
		agent.WithCloseTimeout(closeTimeout),
		agent.WithWorkers(c.Workers),
		agent.WithPinnedWorkers(c.PinWorkers),
	}, nil
}

// parseDuration treats the empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
