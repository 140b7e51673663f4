package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"graydecode/internal/capture"
	"graydecode/internal/graycode"
	"graydecode/internal/logging"
)

// Config is the top-level YAML configuration for graydecode.
//
// The config file is the primary configuration surface; flags override
// individual values on top of it. Defaults and validation live here so the
// rest of the command can assume a well-formed config.
type Config struct {
	// Decoder options
	Decoder DecoderConfig `yaml:"decoder"`

	// Capture input
	Input InputConfig `yaml:"input"`

	// Annotation output
	Output OutputConfig `yaml:"output"`

	// Live annotation feed over WebSocket
	Feed FeedConfig `yaml:"feed"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type DecoderConfig struct {
	NumChannels         int `yaml:"num_channels"` // 0 = auto-detect from input.channels
	PulsesPerRevolution int `yaml:"pulses_per_revolution"`
	WindowCapacity      int `yaml:"window_capacity"`
}

type InputConfig struct {
	Path        string `yaml:"path"`                  // capture file, or "-" for stdin
	SampleRate  uint64 `yaml:"sample_rate"`           // Hz
	Channels    []int  `yaml:"channels,omitempty"`    // enabled channels; empty = all
	Compression string `yaml:"compression,omitempty"` // stdin only; files use their extension
	QueueChunk  int    `yaml:"queue_chunk"`           // stdin read size (bytes)
	QueueDepth  int    `yaml:"queue_depth"`           // stdin chunks buffered ahead of the decoder
}

type OutputConfig struct {
	Format string `yaml:"format"` // text, jsonl, or none
	Path   string `yaml:"path"`   // file, or "-" for stdout
	Digest bool   `yaml:"digest"` // log an xxhash64 digest of the annotation stream
}

type FeedConfig struct {
	Listen       string `yaml:"listen"` // e.g. "127.0.0.1:8090"; empty disables the feed
	Path         string `yaml:"path"`
	SendBuf      int    `yaml:"send_buf"`
	BroadcastBuf int    `yaml:"broadcast_buf"`
	LingerMS     int    `yaml:"linger_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	dc := graycode.DefaultConfig()
	return Config{
		Decoder: DecoderConfig{
			NumChannels:         dc.NumChannels,
			PulsesPerRevolution: dc.PulsesPerRevolution,
			WindowCapacity:      dc.WindowCapacity,
		},
		Input: InputConfig{
			Path:       stdioPath,
			QueueChunk: capture.DefaultChunkSize,
			QueueDepth: capture.DefaultQueueDepth,
		},
		Output: OutputConfig{
			Format: formatText,
			Path:   stdioPath,
		},
		Feed: FeedConfig{
			Path:         defaultFeedPath,
			SendBuf:      defaultFeedSendBuf,
			BroadcastBuf: defaultFeedBroadcastBuf,
			LingerMS:     defaultFeedLingerMS,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from flags that were explicitly set.
//
// Each override is only applied if its pointer is non-nil; main.go decides
// which flags exist.
type FlagOverrides struct {
	NumChannels         *int
	PulsesPerRevolution *int
	WindowCapacity      *int

	InputPath   *string
	SampleRate  *uint64
	Channels    *[]int
	Compression *string

	OutputFormat *string
	OutputPath   *string
	Digest       *bool

	FeedListen   *string
	FeedPath     *string
	FeedLingerMS *int

	LogLevel *string
}

// Apply merges the overrides into cfg. If the pointer is non-nil, the value
// is applied (even if it is a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.NumChannels != nil {
		cfg.Decoder.NumChannels = *o.NumChannels
	}
	if o.PulsesPerRevolution != nil {
		cfg.Decoder.PulsesPerRevolution = *o.PulsesPerRevolution
	}
	if o.WindowCapacity != nil {
		cfg.Decoder.WindowCapacity = *o.WindowCapacity
	}

	if o.InputPath != nil {
		cfg.Input.Path = *o.InputPath
	}
	if o.SampleRate != nil {
		cfg.Input.SampleRate = *o.SampleRate
	}
	if o.Channels != nil {
		cfg.Input.Channels = append([]int(nil), (*o.Channels)...)
	}
	if o.Compression != nil {
		cfg.Input.Compression = *o.Compression
	}

	if o.OutputFormat != nil {
		cfg.Output.Format = *o.OutputFormat
	}
	if o.OutputPath != nil {
		cfg.Output.Path = *o.OutputPath
	}
	if o.Digest != nil {
		cfg.Output.Digest = *o.Digest
	}

	if o.FeedListen != nil {
		cfg.Feed.Listen = *o.FeedListen
	}
	if o.FeedPath != nil {
		cfg.Feed.Path = *o.FeedPath
	}
	if o.FeedLingerMS != nil {
		cfg.Feed.LingerMS = *o.FeedLingerMS
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
//
// Decoder options are checked by graycode.Config.Validate so the messages
// carry the decoder's sentinel errors.
func (c *Config) Validate() error {
	// Decoder
	if err := c.DecoderConfig().Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}

	// Input
	if c.Input.Path == "" {
		return errors.New("input.path must not be empty (use \"-\" for stdin)")
	}
	if c.Input.SampleRate == 0 {
		return fmt.Errorf("input.sample_rate: %w", graycode.ErrMissingSampleRate)
	}
	if _, err := capture.ChannelSet(c.Input.Channels); err != nil {
		return fmt.Errorf("input.channels: %w", err)
	}
	if _, err := capture.ParseCodec(c.Input.Compression); err != nil {
		return fmt.Errorf("input.compression: %w", err)
	}
	if c.Input.QueueChunk < 0 {
		return errors.New("input.queue_chunk must be >= 0")
	}
	if c.Input.QueueDepth < 0 {
		return errors.New("input.queue_depth must be >= 0")
	}

	// Output
	switch c.Output.Format {
	case formatText, formatJSONL, formatNone:
	default:
		return fmt.Errorf("output.format must be %q, %q, or %q", formatText, formatJSONL, formatNone)
	}
	if c.Output.Format != formatNone && c.Output.Path == "" {
		return errors.New("output.path must not be empty (use \"-\" for stdout)")
	}

	// Feed
	if c.Feed.Listen != "" {
		if !strings.HasPrefix(c.Feed.Path, "/") {
			return errors.New("feed.path must start with \"/\"")
		}
		if c.Feed.LingerMS < 0 {
			return errors.New("feed.linger_ms must be >= 0")
		}
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// DecoderConfig converts the file config into the decoder's options.
func (c *Config) DecoderConfig() graycode.Config {
	return graycode.Config{
		NumChannels:         c.Decoder.NumChannels,
		PulsesPerRevolution: c.Decoder.PulsesPerRevolution,
		WindowCapacity:      c.Decoder.WindowCapacity,
	}
}

// parseChannelList parses a comma-separated channel list such as "0,1,2".
func parseChannelList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
