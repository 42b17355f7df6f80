// Package observe provides application-wide observability primitives for
// voiceloop: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voiceloop metrics.
const meterName = "github.com/soundbench/voiceloop"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path counters ---

	// FramesCaptured counts PCM frames assembled by the capture pipeline.
	FramesCaptured metric.Int64Counter

	// ResiduesDropped counts capture stops that discarded a partial-frame
	// sample residue. The residue is always shorter than one frame, so this
	// is a count of drop events, not of frames.
	ResiduesDropped metric.Int64Counter

	// PacketsEncoded counts packets successfully produced by the encoder.
	PacketsEncoded metric.Int64Counter

	// EncodeErrors counts per-frame encode failures (frame skipped).
	EncodeErrors metric.Int64Counter

	// --- Playback path counters ---

	// DecodeAttempts counts packets handed to the decoder.
	DecodeAttempts metric.Int64Counter

	// DecodeErrors counts per-packet decode failures (packet skipped).
	DecodeErrors metric.Int64Counter

	// --- Session lifecycle ---

	// SessionsStarted counts recording sessions. Use with attribute:
	//   attribute.String("outcome", "completed"|"aborted")  on completion paths.
	SessionsStarted metric.Int64Counter

	// StateTransitions counts controller state changes. Use with attribute:
	//   attribute.String("state", ...)
	StateTransitions metric.Int64Counter

	// RecordingDuration tracks how long each recording phase lasted.
	RecordingDuration metric.Float64Histogram

	// PlaybackDuration tracks how long each playback phase lasted.
	PlaybackDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets defines histogram bucket boundaries (in seconds) sized for
// short voice sessions.
var durationBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesCaptured, err = m.Int64Counter("voiceloop.capture.frames",
		metric.WithDescription("Total PCM frames assembled by the capture pipeline."),
	); err != nil {
		return nil, err
	}
	if met.ResiduesDropped, err = m.Int64Counter("voiceloop.capture.residues_dropped",
		metric.WithDescription("Capture stops that discarded a partial-frame sample residue."),
	); err != nil {
		return nil, err
	}
	if met.PacketsEncoded, err = m.Int64Counter("voiceloop.encode.packets",
		metric.WithDescription("Total packets successfully produced by the Opus encoder."),
	); err != nil {
		return nil, err
	}
	if met.EncodeErrors, err = m.Int64Counter("voiceloop.encode.errors",
		metric.WithDescription("Per-frame encode failures; the frame is skipped."),
	); err != nil {
		return nil, err
	}
	if met.DecodeAttempts, err = m.Int64Counter("voiceloop.decode.attempts",
		metric.WithDescription("Total packets handed to the Opus decoder."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voiceloop.decode.errors",
		metric.WithDescription("Per-packet decode failures; the packet is skipped."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("voiceloop.sessions",
		metric.WithDescription("Total recording sessions started."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("voiceloop.state.transitions",
		metric.WithDescription("Session controller state transitions by target state."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("voiceloop.recording.duration",
		metric.WithDescription("Duration of the recording phase per session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voiceloop.playback.duration",
		metric.WithDescription("Duration of the playback phase per session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceloop.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStateTransition records a controller transition into the named state.
func (m *Metrics) RecordStateTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordSessionStarted records the start of a recording session.
func (m *Metrics) RecordSessionStarted(ctx context.Context) {
	m.SessionsStarted.Add(ctx, 1)
}
