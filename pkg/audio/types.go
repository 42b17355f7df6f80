package audio

import "time"

// AudioFrame represents a single fixed-duration block of PCM audio flowing
// through the pipeline. Frames are the atomic unit of audio transport —
// captured from the input device, encoded/decoded by the codec, and rendered
// by the output device.
type AudioFrame struct {
	// Data holds little-endian int16 PCM samples. Sample rate and channel
	// count are determined by the pipeline config.
	Data []byte

	// SampleRate in Hz (48000 for the Opus voice pipeline).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo output devices.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of PCM samples per channel in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Data) / 2 / f.Channels
}

// Duration returns the frame's play length derived from its sample count.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameSamples returns the per-channel sample count of one frame of frameMs
// milliseconds at this format's rate (e.g. 960 for 20 ms at 48 kHz).
func (f Format) FrameSamples(frameMs int) int {
	return f.SampleRate * frameMs / 1000
}

// Encoder compresses one AudioFrame into an opaque encoded packet.
// Implementations serve a single logical stream and are not safe for
// concurrent use without external synchronisation.
type Encoder interface {
	Encode(frame AudioFrame) ([]byte, error)
}

// Decoder reconstructs an AudioFrame from one encoded packet.
// Same concurrency contract as [Encoder].
type Decoder interface {
	Decode(packet []byte) (AudioFrame, error)
}
