// Package config provides the configuration schema and loader for the
// voiceloop daemon.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the voiceloop daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// validSampleRates lists the sample rates the Opus codec accepts.
var validSampleRates = []int{8000, 12000, 16000, 24000, 48000}

// validFrameMs lists the frame durations the Opus codec accepts, restricted
// to whole milliseconds.
var validFrameMs = []int{5, 10, 20, 40, 60}

// Config is the root configuration structure for voiceloop.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server Server `yaml:"server"`
	Audio  Audio  `yaml:"audio"`
	Output Output `yaml:"output"`
}

// Server holds network and logging settings for the control surface.
type Server struct {
	// ListenAddr is the TCP address the HTTP control surface listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Audio holds the fixed session format for capture and the codec.
type Audio struct {
	// SampleRate in Hz. Must be an Opus-supported rate; default 48000.
	SampleRate int `yaml:"sample_rate"`

	// Channels captured from the microphone: 1 or 2. Default 1.
	Channels int `yaml:"channels"`

	// FrameMs is the frame duration in milliseconds. Default 20.
	FrameMs int `yaml:"frame_ms"`

	// Bitrate is the Opus encoder bitrate in bits/s. Default 32000.
	Bitrate int `yaml:"bitrate"`
}

// Output holds the playback device format. Decoded frames are converted to
// this format before rendering, so a stereo output device can play back a
// mono recording.
type Output struct {
	// Channels on the output device: 1 or 2. Default: same as capture.
	Channels int `yaml:"channels"`
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		Server: Server{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: Audio{
			SampleRate: 48000,
			Channels:   1,
			FrameMs:    20,
			Bitrate:    32000,
		},
		Output: Output{
			Channels: 1,
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults for omitted
// fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields from [Default].
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = def.Audio.Channels
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = def.Audio.FrameMs
	}
	if cfg.Audio.Bitrate == 0 {
		cfg.Audio.Bitrate = def.Audio.Bitrate
	}
	if cfg.Output.Channels == 0 {
		cfg.Output.Channels = cfg.Audio.Channels
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !slices.Contains(validSampleRates, cfg.Audio.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: %v", cfg.Audio.SampleRate, validSampleRates))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if !slices.Contains(validFrameMs, cfg.Audio.FrameMs) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: %v", cfg.Audio.FrameMs, validFrameMs))
	}
	if cfg.Audio.Bitrate < 500 || cfg.Audio.Bitrate > 512000 {
		errs = append(errs, fmt.Errorf("audio.bitrate %d is out of range [500, 512000]", cfg.Audio.Bitrate))
	}

	if cfg.Output.Channels != 1 && cfg.Output.Channels != 2 {
		errs = append(errs, fmt.Errorf("output.channels %d is invalid; valid values: 1, 2", cfg.Output.Channels))
	}

	return errors.Join(errs...)
}
