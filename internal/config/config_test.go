package config_test

import (
	"strings"
	"testing"

	"github.com/soundbench/voiceloop/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	yml := `
server:
  listen_addr: ":9090"
  log_level: debug
audio:
  sample_rate: 16000
  channels: 1
  frame_ms: 20
  bitrate: 24000
output:
  channels: 2
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Output.Channels != 2 {
		t.Errorf("Output.Channels = %d, want 2", cfg.Output.Channels)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}

	def := config.Default()
	if cfg.Server.ListenAddr != def.Server.ListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, def.Server.ListenAddr)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameMs != 20 {
		t.Errorf("FrameMs = %d, want 20", cfg.Audio.FrameMs)
	}
	if cfg.Audio.Bitrate != 32000 {
		t.Errorf("Bitrate = %d, want 32000", cfg.Audio.Bitrate)
	}
}

func TestLoadFromReader_OutputChannelsDefaultToCapture(t *testing.T) {
	t.Parallel()

	yml := `
audio:
  channels: 2
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}
	if cfg.Output.Channels != 2 {
		t.Errorf("Output.Channels = %d, want 2 (capture channels)", cfg.Output.Channels)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yml := `
server:
  listen_adress: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yml)); err == nil {
		t.Fatal("unknown field should be rejected")
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantSub: "log_level",
		},
		{
			name:    "bad sample rate",
			mutate:  func(c *config.Config) { c.Audio.SampleRate = 44100 },
			wantSub: "sample_rate",
		},
		{
			name:    "bad channels",
			mutate:  func(c *config.Config) { c.Audio.Channels = 6 },
			wantSub: "audio.channels",
		},
		{
			name:    "bad frame duration",
			mutate:  func(c *config.Config) { c.Audio.FrameMs = 25 },
			wantSub: "frame_ms",
		},
		{
			name:    "bitrate too low",
			mutate:  func(c *config.Config) { c.Audio.Bitrate = 100 },
			wantSub: "bitrate",
		},
		{
			name:    "bad output channels",
			mutate:  func(c *config.Config) { c.Output.Channels = 3 },
			wantSub: "output.channels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Audio.SampleRate = 44100
	cfg.Audio.Channels = 9

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if !strings.Contains(err.Error(), "sample_rate") || !strings.Contains(err.Error(), "channels") {
		t.Errorf("joined error missing failures: %q", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/voiceloop.yaml"); err == nil {
		t.Fatal("Load() of missing file should fail")
	}
}
