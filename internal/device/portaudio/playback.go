package portaudio

import (
	"fmt"

	pa "github.com/gordonklaus/portaudio"

	"github.com/soundbench/voiceloop/pkg/audio"
)

// PlaybackDevice opens the default output device.
type PlaybackDevice struct{}

// NewPlaybackDevice returns a playback device backed by the system default
// speaker.
func NewPlaybackDevice() *PlaybackDevice {
	return &PlaybackDevice{}
}

// Available probes for a usable default output device.
func (d *PlaybackDevice) Available() error {
	if _, err := pa.DefaultOutputDevice(); err != nil {
		return fmt.Errorf("portaudio: no default output device: %w", err)
	}
	return nil
}

// Open opens a blocking output stream. Each Write must supply
// framesPerBuffer samples per channel.
func (d *PlaybackDevice) Open(format audio.Format, framesPerBuffer int) (audio.PlaybackStream, error) {
	buf := make([]int16, framesPerBuffer*format.Channels)
	stream, err := pa.OpenDefaultStream(
		0, format.Channels,
		float64(format.SampleRate), framesPerBuffer,
		buf,
	)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	return &playbackStream{stream: stream, buf: buf}, nil
}

type playbackStream struct {
	stream *pa.Stream
	buf    []int16
}

func (s *playbackStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	return nil
}

// Write renders one block. The block must match the buffer size the stream
// was opened with.
func (s *playbackStream) Write(samples []int16) error {
	if len(samples) != len(s.buf) {
		return fmt.Errorf("portaudio: block size %d does not match stream buffer %d",
			len(samples), len(s.buf))
	}
	copy(s.buf, samples)
	if err := s.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: write output stream: %w", err)
	}
	return nil
}

// Stop drains buffered audio before halting, so the caller observes gapless
// completion of the final block.
func (s *playbackStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	return nil
}

func (s *playbackStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close output stream: %w", err)
	}
	return nil
}
