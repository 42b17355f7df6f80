package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/soundbench/voiceloop/internal/observe"
	"github.com/soundbench/voiceloop/internal/pipeline"
	"github.com/soundbench/voiceloop/pkg/audio"
	"github.com/soundbench/voiceloop/pkg/audio/mock"
)

var captureFormat = audio.Format{SampleRate: 48000, Channels: 1}

// samples returns n int16 samples of value v.
func samples(v int16, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// collectFrames returns a FrameHandler that forwards frames to a channel.
func collectFrames(buf int) (pipeline.FrameHandler, <-chan audio.AudioFrame) {
	ch := make(chan audio.AudioFrame, buf)
	return func(f audio.AudioFrame) { ch <- f }, ch
}

// waitFrames receives n frames or fails the test after a timeout.
func waitFrames(t *testing.T, ch <-chan audio.AudioFrame, n int) []audio.AudioFrame {
	t.Helper()
	frames := make([]audio.AudioFrame, 0, n)
	deadline := time.After(2 * time.Second)
	for len(frames) < n {
		select {
		case f := <-ch:
			frames = append(frames, f)
		case <-deadline:
			t.Fatalf("timed out waiting for frames: got %d, want %d", len(frames), n)
		}
	}
	return frames
}

func TestCapture_AssemblesFramesInOrder(t *testing.T) {
	t.Parallel()

	dev := &mock.CaptureDevice{Blocks: [][]int16{
		samples(1, 960),
		samples(2, 960),
		samples(3, 960),
	}}
	handler, frames := collectFrames(8)
	c := pipeline.NewCapture(dev, captureFormat, 960, handler, nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer c.Stop()

	got := waitFrames(t, frames, 3)
	for i, f := range got {
		pcm := audio.BytesToInt16s(f.Data)
		if pcm[0] != int16(i+1) {
			t.Errorf("frame %d first sample = %d, want %d", i, pcm[0], i+1)
		}
		if f.Samples() != 960 {
			t.Errorf("frame %d samples = %d, want 960", i, f.Samples())
		}
	}
}

func TestCapture_PartialResidueNeverEmitted(t *testing.T) {
	t.Parallel()

	// 960 + 500 samples: exactly one complete frame, 500 samples of residue.
	dev := &mock.CaptureDevice{Blocks: [][]int16{
		samples(1, 960),
		samples(2, 500),
	}}
	handler, frames := collectFrames(8)
	c := pipeline.NewCapture(dev, captureFormat, 960, handler, nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitFrames(t, frames, 1)
	c.Stop()

	select {
	case f := <-frames:
		t.Fatalf("partial residue emitted as %d-sample frame", f.Samples())
	default:
	}
}

func TestCapture_ResidueDropIsCounted(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	dev := &mock.CaptureDevice{Blocks: [][]int16{
		samples(1, 960),
		samples(2, 500), // residue, never completes a frame
	}}
	handler, frames := collectFrames(8)
	c := pipeline.NewCapture(dev, captureFormat, 960, handler, m)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitFrames(t, frames, 1)
	c.Stop()

	// One drop event, regardless of the residue's sample count.
	if got := counterValue(t, reader, "voiceloop.capture.residues_dropped"); got != 1 {
		t.Errorf("residues_dropped = %d, want 1", got)
	}
	if got := counterValue(t, reader, "voiceloop.capture.frames"); got != 1 {
		t.Errorf("frames captured = %d, want 1", got)
	}
}

// counterValue collects from the reader and sums the named int64 counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || met.Name != name {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestCapture_StartIdempotent(t *testing.T) {
	t.Parallel()

	dev := &mock.CaptureDevice{}
	handler, _ := collectFrames(1)
	c := pipeline.NewCapture(dev, captureFormat, 960, handler, nil)

	if err := c.Start(); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer c.Stop()
	if err := c.Start(); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if dev.OpenCalls() != 1 {
		t.Errorf("Open calls = %d, want 1", dev.OpenCalls())
	}
}

func TestCapture_StopSafeWithoutStartAndTwice(t *testing.T) {
	t.Parallel()

	handler, _ := collectFrames(1)
	c := pipeline.NewCapture(&mock.CaptureDevice{}, captureFormat, 960, handler, nil)

	c.Stop() // never started

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	c.Stop()
	c.Stop() // second stop is a no-op

	if c.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestCapture_StartFailsWhenDeviceUnavailable(t *testing.T) {
	t.Parallel()

	dev := &mock.CaptureDevice{OpenErr: errors.New("no input device")}
	handler, _ := collectFrames(1)
	c := pipeline.NewCapture(dev, captureFormat, 960, handler, nil)

	err := c.Start()
	if !errors.Is(err, pipeline.ErrCaptureStart) {
		t.Fatalf("Start() error = %v, want ErrCaptureStart", err)
	}
	if c.Running() {
		t.Error("Running() = true after failed Start")
	}
}
