// Package pipeline implements the two streaming halves of the record-then-play
// loop: the Capture pipeline bridging the microphone's cadence callbacks into
// fixed-duration frames, and the Playback pipeline rendering an ordered frame
// sequence gaplessly with a single completion signal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/soundbench/voiceloop/internal/observe"
	"github.com/soundbench/voiceloop/pkg/audio"
)

// ErrCaptureStart reports that the microphone input stream could not be
// opened or started.
var ErrCaptureStart = errors.New("pipeline: capture stream could not start")

// FrameHandler receives each assembled frame on the capture goroutine. The
// handler must complete before the next cadence tick or the device buffer
// drops samples, so it has to be O(frame size) and allocation-light.
type FrameHandler func(audio.AudioFrame)

// Capture owns the microphone input stream. It reads raw sample blocks from
// the device, assembles them into exact fixed-duration frames via
// [audio.Framer], and hands each frame to the registered handler. Blocks that
// never complete a frame (the residue at stop) are dropped.
//
// Start and Stop are safe for concurrent use. The handler runs on the capture
// goroutine only.
type Capture struct {
	dev       audio.CaptureDevice
	format    audio.Format
	frameSize int
	handler   FrameHandler
	metrics   *observe.Metrics

	mu      sync.Mutex
	stream  audio.CaptureStream
	running bool
	wg      sync.WaitGroup
}

// NewCapture creates a capture pipeline producing frames of frameSize samples
// per channel in the given format. The handler must not be nil.
func NewCapture(dev audio.CaptureDevice, format audio.Format, frameSize int, handler FrameHandler, metrics *observe.Metrics) *Capture {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Capture{
		dev:       dev,
		format:    format,
		frameSize: frameSize,
		handler:   handler,
		metrics:   metrics,
	}
}

// Start opens the input stream and launches the read loop. Calling Start on
// an already-started pipeline is a no-op. Failures to open or start the
// stream are wrapped in [ErrCaptureStart].
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	stream, err := c.dev.Open(c.format, c.frameSize)
	if err != nil {
		return fmt.Errorf("%w: open input stream: %w", ErrCaptureStart, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: start input stream: %w", ErrCaptureStart, err)
	}

	c.stream = stream
	c.running = true
	c.wg.Add(1)
	go c.readLoop(stream)
	return nil
}

// Stop halts the read loop, closes the stream, and drops any partial-frame
// residue. Safe to call when never started; safe to call more than once.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	// Stopping the stream unblocks the pending Read; the loop then exits.
	_ = stream.Stop()
	c.wg.Wait()
	_ = stream.Close()
}

// Running reports whether the read loop is active.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// readLoop drains the device until the stream stops. Each Read returns the
// device's internal buffer, which the framer copies before the next Read.
func (c *Capture) readLoop(stream audio.CaptureStream) {
	defer c.wg.Done()

	ctx := context.Background()
	framer := audio.NewFramer(c.format, c.frameSize)

	for {
		samples, err := stream.Read()
		if err != nil {
			c.mu.Lock()
			running := c.running
			c.mu.Unlock()
			if running {
				slog.Warn("capture read failed, input stream halted", "err", err)
			}
			if framer.Residue() > 0 {
				slog.Debug("dropping partial frame residue at capture stop",
					"samples", framer.Residue())
				c.metrics.ResiduesDropped.Add(ctx, 1)
			}
			return
		}

		framer.Push(samples, func(frame audio.AudioFrame) {
			c.metrics.FramesCaptured.Add(ctx, 1)
			c.handler(frame)
		})
	}
}
