// Package audio defines the types and device interfaces for the voiceloop
// record-then-play pipeline.
//
// The two primary abstractions are:
//
//   - [CaptureDevice] — opens a microphone input stream delivering blocks of
//     PCM samples at a fixed cadence.
//   - [PlaybackDevice] — opens a speaker output stream accepting blocks of
//     PCM samples for sequential rendering.
//
// Implementations are provided by device adapter packages (e.g.
// internal/device/portaudio) and by pkg/audio/mock for tests. The interfaces
// are intentionally narrow to keep the session controller decoupled from the
// host audio system.
//
// This package lives under pkg/ because external code (alternative device
// adapters, custom codecs) is expected to implement these interfaces.
package audio

// CaptureStream is an open microphone input stream.
//
// Read blocks until the next block of samples is available and returns a
// buffer that is only valid until the next Read call; callers that retain
// samples must copy them. After Stop, pending and subsequent Reads return an
// error.
type CaptureStream interface {
	Start() error
	Read() ([]int16, error)
	Stop() error
	Close() error
}

// CaptureDevice opens microphone input streams.
//
// Implementations must be safe for concurrent use; the streams they return
// need not be.
type CaptureDevice interface {
	// Available probes whether an input device is present and usable.
	// A non-nil error stands in for "no device or no permission".
	Available() error

	// Open opens an input stream in the given format. Each Read delivers
	// framesPerBuffer samples per channel.
	Open(format Format, framesPerBuffer int) (CaptureStream, error)
}

// PlaybackStream is an open speaker output stream.
//
// Write blocks until the device has accepted the block; consecutive Writes
// render gaplessly. Stop drains buffered audio before halting, so a Stop
// issued after the final Write returns only once the last samples have been
// rendered.
type PlaybackStream interface {
	Start() error
	Write(samples []int16) error
	Stop() error
	Close() error
}

// PlaybackDevice opens speaker output streams.
//
// Implementations must be safe for concurrent use; the streams they return
// need not be.
type PlaybackDevice interface {
	// Available probes whether an output device is present and usable.
	Available() error

	// Open opens an output stream in the given format. Each Write must supply
	// framesPerBuffer samples per channel.
	Open(format Format, framesPerBuffer int) (PlaybackStream, error)
}
