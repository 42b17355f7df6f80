package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestCounterIncrements(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	counters := []struct {
		name string
		c    metric.Int64Counter
	}{
		{"voiceloop.capture.frames", m.FramesCaptured},
		{"voiceloop.encode.packets", m.PacketsEncoded},
		{"voiceloop.decode.attempts", m.DecodeAttempts},
		{"voiceloop.decode.errors", m.DecodeErrors},
	}

	for _, tc := range counters {
		tc.c.Add(ctx, 1)
		tc.c.Add(ctx, 2)
	}

	rm := collect(t, reader)

	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			found := findMetric(rm, tc.name)
			if found == nil {
				t.Fatalf("metric %q not collected", tc.name)
			}
			sum, ok := found.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is %T, want Sum[int64]", tc.name, found.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			if total != 3 {
				t.Errorf("metric %q total = %d, want 3", tc.name, total)
			}
		})
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordingDuration.Record(ctx, 1.5)
	m.PlaybackDuration.Record(ctx, 1.5)

	rm := collect(t, reader)

	for _, name := range []string{"voiceloop.recording.duration", "voiceloop.playback.duration"} {
		found := findMetric(rm, name)
		if found == nil {
			t.Fatalf("metric %q not collected", name)
		}
		hist, ok := found.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %q is %T, want Histogram[float64]", name, found.Data)
		}
		if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
			t.Errorf("metric %q: unexpected data points %+v", name, hist.DataPoints)
		}
	}
}

func TestRecordStateTransition_AddsStateAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordStateTransition(context.Background(), "recording")

	rm := collect(t, reader)
	found := findMetric(rm, "voiceloop.state.transitions")
	if found == nil {
		t.Fatal("state transitions metric not collected")
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric is %T, want Sum[int64]", found.Data)
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(sum.DataPoints))
	}
	v, ok := sum.DataPoints[0].Attributes.Value("state")
	if !ok || v.AsString() != "recording" {
		t.Errorf("state attribute = %v, want %q", v, "recording")
	}
}
