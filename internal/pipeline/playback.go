package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soundbench/voiceloop/internal/observe"
	"github.com/soundbench/voiceloop/pkg/audio"
)

// ErrPlaybackStart reports that the speaker output stream could not be opened
// or started.
var ErrPlaybackStart = errors.New("pipeline: playback stream could not start")

// Completion reports how a scheduled playback ended. It is delivered exactly
// once per schedule, after the final frame has finished rendering — not after
// it was merely enqueued.
type Completion struct {
	// Truncated is true when the output device failed mid-playback and the
	// remaining frames were dropped. Completion is still best-effort: the
	// callback fires either way.
	Truncated bool

	// Played is the rendered audio duration.
	Played time.Duration
}

// Playback owns the speaker output stream. Schedule hands it an ordered frame
// sequence and a completion callback; Play renders the queue gaplessly on a
// dedicated goroutine. Frames are converted to the output device format
// before rendering, so a stereo device can play back a mono recording.
//
// All methods are safe for concurrent use. The completion callback runs on
// the render goroutine and must not block.
type Playback struct {
	dev       audio.PlaybackDevice
	format    audio.Format
	frameSize int
	metrics   *observe.Metrics

	mu         sync.Mutex
	frames     []audio.AudioFrame
	onComplete func(Completion)
	playing    bool
}

// NewPlayback creates a playback pipeline rendering to streams of frameSize
// samples per channel in the given output format.
func NewPlayback(dev audio.PlaybackDevice, format audio.Format, frameSize int, metrics *observe.Metrics) *Playback {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Playback{
		dev:       dev,
		format:    format,
		frameSize: frameSize,
		metrics:   metrics,
	}
}

// Schedule enqueues frames for gapless sequential playback in the given
// order and registers onComplete to fire exactly once after the final frame
// finishes rendering. An empty frames slice completes immediately: a
// zero-length playback is still a playback, and its completion still fires
// (asynchronously, like any other).
//
// Schedule replaces any previously scheduled, not-yet-playing queue. Calling
// it while a queue is rendering is a caller error.
func (p *Playback) Schedule(frames []audio.AudioFrame, onComplete func(Completion)) {
	if len(frames) == 0 {
		go onComplete(Completion{})
		return
	}
	p.mu.Lock()
	p.frames = frames
	p.onComplete = onComplete
	p.mu.Unlock()
}

// Play starts rendering the scheduled queue. It is a no-op when playback is
// already running or nothing is scheduled. Failures to open or start the
// output stream are wrapped in [ErrPlaybackStart]; in that case the queue is
// discarded and the completion callback is never invoked — the caller owns
// the abort path.
func (p *Playback) Play() error {
	p.mu.Lock()
	if p.playing || len(p.frames) == 0 {
		p.mu.Unlock()
		return nil
	}
	frames := p.frames
	onComplete := p.onComplete
	p.frames = nil
	p.onComplete = nil

	stream, err := p.dev.Open(p.format, p.frameSize)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: open output stream: %w", ErrPlaybackStart, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		p.mu.Unlock()
		return fmt.Errorf("%w: start output stream: %w", ErrPlaybackStart, err)
	}

	p.playing = true
	p.mu.Unlock()

	go p.render(stream, frames, onComplete)
	return nil
}

// Playing reports whether a queue is currently rendering.
func (p *Playback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// render writes each frame to the device in order. Stop drains buffered
// audio, so completion is delivered only after the last sample has rendered.
func (p *Playback) render(stream audio.PlaybackStream, frames []audio.AudioFrame, onComplete func(Completion)) {
	conv := audio.FormatConverter{Target: p.format}
	truncated := false
	var played time.Duration

	for _, frame := range frames {
		out := conv.Convert(frame)
		if len(out.Data) == 0 {
			continue
		}
		if err := stream.Write(audio.BytesToInt16s(out.Data)); err != nil {
			slog.Warn("output device failed mid-playback, dropping remaining frames", "err", err)
			truncated = true
			break
		}
		played += frame.Duration()
	}

	_ = stream.Stop()
	_ = stream.Close()

	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()

	p.metrics.PlaybackDuration.Record(context.Background(), played.Seconds())
	onComplete(Completion{Truncated: truncated, Played: played})
}
