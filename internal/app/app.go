// Package app wires the voiceloop subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface until the context is cancelled,
// and Shutdown tears everything down in order.
//
// For testing, inject fake devices and codecs via functional options
// (WithCaptureDevice, WithEncoder, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundbench/voiceloop/internal/config"
	padevice "github.com/soundbench/voiceloop/internal/device/portaudio"
	"github.com/soundbench/voiceloop/internal/health"
	"github.com/soundbench/voiceloop/internal/observe"
	"github.com/soundbench/voiceloop/internal/server"
	"github.com/soundbench/voiceloop/internal/session"
	"github.com/soundbench/voiceloop/pkg/audio"
	"github.com/soundbench/voiceloop/pkg/audio/opus"
)

const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	capDev  audio.CaptureDevice
	playDev audio.PlaybackDevice
	enc     audio.Encoder
	dec     audio.Decoder
	metrics *observe.Metrics

	ctrl    *session.Controller
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCaptureDevice injects a capture device instead of opening PortAudio.
func WithCaptureDevice(d audio.CaptureDevice) Option {
	return func(a *App) { a.capDev = d }
}

// WithPlaybackDevice injects a playback device instead of opening PortAudio.
func WithPlaybackDevice(d audio.PlaybackDevice) Option {
	return func(a *App) { a.playDev = d }
}

// WithEncoder injects an encoder instead of creating an Opus one.
func WithEncoder(e audio.Encoder) Option {
	return func(a *App) { a.enc = e }
}

// WithDecoder injects a decoder instead of creating an Opus one.
func WithDecoder(d audio.Decoder) Option {
	return func(a *App) { a.dec = d }
}

// WithMetrics injects a metrics set instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any of them.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initDevices(); err != nil {
		return nil, fmt.Errorf("app: init devices: %w", err)
	}
	if err := a.initCodec(); err != nil {
		return nil, fmt.Errorf("app: init codec: %w", err)
	}

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	a.ctrl = session.NewController(session.Config{
		CaptureDevice:  a.capDev,
		PlaybackDevice: a.playDev,
		Encoder:        a.enc,
		Decoder:        a.dec,
		Format:         format,
		FrameSize:      format.FrameSamples(cfg.Audio.FrameMs),
		OutputFormat:   audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Output.Channels},
		Metrics:        a.metrics,
	})
	a.closers = append(a.closers, func() error {
		a.ctrl.Close()
		return nil
	})

	h := health.New(
		health.DeviceChecker("capture_device", a.capDev.Available),
		health.DeviceChecker("playback_device", a.playDev.Available),
	)
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(a.ctrl, h, a.metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initDevices opens the PortAudio devices unless both were injected.
func (a *App) initDevices() error {
	if a.capDev != nil && a.playDev != nil {
		return nil
	}
	if err := padevice.Initialize(); err != nil {
		return err
	}
	a.closers = append(a.closers, padevice.Terminate)
	if a.capDev == nil {
		a.capDev = padevice.NewCaptureDevice()
	}
	if a.playDev == nil {
		a.playDev = padevice.NewPlaybackDevice()
	}
	return nil
}

// initCodec creates the Opus encoder and decoder unless injected.
func (a *App) initCodec() error {
	params := opus.Params{
		SampleRate: a.cfg.Audio.SampleRate,
		Channels:   a.cfg.Audio.Channels,
		FrameMs:    a.cfg.Audio.FrameMs,
		Bitrate:    a.cfg.Audio.Bitrate,
	}
	if a.enc == nil {
		enc, err := opus.NewEncoder(params)
		if err != nil {
			return err
		}
		a.enc = enc
	}
	if a.dec == nil {
		dec, err := opus.NewDecoder(params)
		if err != nil {
			return err
		}
		a.dec = dec
	}
	return nil
}

// Controller exposes the session controller, mainly for tests.
func (a *App) Controller() *session.Controller {
	return a.ctrl
}

// Handler exposes the HTTP route table, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}

// Run serves the HTTP surface and blocks until ctx is cancelled or the
// server fails. The listener is torn down before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order, so the session
// controller stops before the audio library terminates. It respects the
// context deadline: if ctx expires before all closers finish, the remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
