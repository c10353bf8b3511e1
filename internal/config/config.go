// Package config loads the sdtdump configuration from a YAML file with
// SIFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/siflow/internal/ingest"
	"github.com/zsiec/siflow/internal/mpegts"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// EnvPrefix prefixes the environment overrides.
const EnvPrefix = "SIFLOW"

// Config is the complete tool configuration.
type Config struct {
	LogLevel    string  `yaml:"log_level"`
	LogFormat   string  `yaml:"log_format"`
	MetricsAddr string  `yaml:"metrics_addr"`
	Output      string  `yaml:"output"`
	SDTPID      uint16  `yaml:"sdt_pid"`
	WarnRate    float64 `yaml:"warn_rate"`
	WarnBurst   int     `yaml:"warn_burst"`
	Inputs      []Input `yaml:"inputs"`
}

// Input is one transport stream source.
//
// URL forms: a plain path or file:///path, "-" for stdin,
// srt://host:port?streamid=x to pull from a remote listener and
// srt://:port?mode=listener to accept publishers.
type Input struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Output:    "json",
		SDTPID:    mpegts.PIDSDT,
		WarnRate:  1,
		WarnBurst: 10,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	envOr := func(key, fallback string) string {
		if v := getenv(EnvPrefix + "_" + key); v != "" {
			return v
		}
		return fallback
	}
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	c.Output = envOr("OUTPUT", c.Output)
	if v := getenv(EnvPrefix + "_SDT_PID"); v != "" {
		if pid, err := strconv.ParseUint(v, 0, 16); err == nil {
			c.SDTPID = uint16(pid)
		}
	}
	if getenv("DEBUG") != "" {
		c.LogLevel = "debug"
	}
}

// Validate checks every field.
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.Output {
	case "text", "json":
	default:
		return fmt.Errorf("%w: output %q", ErrInvalidConfig, c.Output)
	}
	if c.SDTPID >= mpegts.PIDNull {
		return fmt.Errorf("%w: sdt_pid 0x%04X", ErrInvalidConfig, c.SDTPID)
	}
	if c.WarnRate <= 0 || c.WarnBurst <= 0 {
		return fmt.Errorf("%w: warn_rate and warn_burst must be positive", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Inputs))
	for i, in := range c.Inputs {
		if in.Name == "" {
			return fmt.Errorf("%w: input %d has no name", ErrInvalidConfig, i)
		}
		if seen[in.Name] {
			return fmt.Errorf("%w: duplicate input %q", ErrInvalidConfig, in.Name)
		}
		seen[in.Name] = true
		if _, err := in.Source(); err != nil {
			return err
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SourceKind tells how an input is read.
type SourceKind int

// Input source kinds.
const (
	SourceFile SourceKind = iota
	SourceStdin
	SourceSRTCaller
	SourceSRTListener
)

// Source is a parsed input URL.
type Source struct {
	Kind     SourceKind
	Path     string // file path
	Address  string // SRT host:port
	StreamID string
	Format   ingest.InputFormat
}

// Source parses the input URL and format.
func (in Input) Source() (Source, error) {
	format, ok := ingest.ParseFormat(in.Format)
	if !ok {
		return Source{}, fmt.Errorf("%w: input %q: format %q", ErrInvalidConfig, in.Name, in.Format)
	}
	src := Source{Format: format}

	switch {
	case in.URL == "":
		return Source{}, fmt.Errorf("%w: input %q has no url", ErrInvalidConfig, in.Name)
	case in.URL == "-":
		src.Kind = SourceStdin
		return src, nil
	case !strings.Contains(in.URL, "://"):
		src.Kind, src.Path = SourceFile, in.URL
		return src, nil
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return Source{}, fmt.Errorf("%w: input %q: %w", ErrInvalidConfig, in.Name, err)
	}
	switch u.Scheme {
	case "file":
		src.Kind, src.Path = SourceFile, u.Path
	case "srt":
		src.Address = u.Host
		src.StreamID = u.Query().Get("streamid")
		switch u.Query().Get("mode") {
		case "", "caller":
			src.Kind = SourceSRTCaller
			if u.Hostname() == "" {
				return Source{}, fmt.Errorf("%w: input %q: caller needs a host", ErrInvalidConfig, in.Name)
			}
		case "listener":
			src.Kind = SourceSRTListener
		default:
			return Source{}, fmt.Errorf("%w: input %q: srt mode %q", ErrInvalidConfig, in.Name, u.Query().Get("mode"))
		}
		if u.Port() == "" {
			return Source{}, fmt.Errorf("%w: input %q: srt url needs a port", ErrInvalidConfig, in.Name)
		}
	default:
		return Source{}, fmt.Errorf("%w: input %q: scheme %q", ErrInvalidConfig, in.Name, u.Scheme)
	}
	return src, nil
}
