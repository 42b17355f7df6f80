package portaudio

import (
	"fmt"

	pa "github.com/gordonklaus/portaudio"

	"github.com/soundbench/voiceloop/pkg/audio"
)

// CaptureDevice opens the default input device.
type CaptureDevice struct{}

// NewCaptureDevice returns a capture device backed by the system default
// microphone.
func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{}
}

// Available probes for a usable default input device. PortAudio reports
// permission problems the same way as a missing device, so this probe
// covers both.
func (d *CaptureDevice) Available() error {
	if _, err := pa.DefaultInputDevice(); err != nil {
		return fmt.Errorf("portaudio: no default input device: %w", err)
	}
	return nil
}

// Open opens a blocking input stream. The stream reads into a fixed buffer
// of framesPerBuffer samples per channel.
func (d *CaptureDevice) Open(format audio.Format, framesPerBuffer int) (audio.CaptureStream, error) {
	buf := make([]int16, framesPerBuffer*format.Channels)
	stream, err := pa.OpenDefaultStream(
		format.Channels, 0,
		float64(format.SampleRate), framesPerBuffer,
		buf,
	)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	return &captureStream{stream: stream, buf: buf}, nil
}

type captureStream struct {
	stream *pa.Stream
	buf    []int16
}

func (s *captureStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	return nil
}

// Read blocks until the device has filled the buffer. The returned slice is
// reused on the next Read.
func (s *captureStream) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("portaudio: read input stream: %w", err)
	}
	return s.buf, nil
}

func (s *captureStream) Stop() error {
	if err := s.stream.Abort(); err != nil {
		return fmt.Errorf("portaudio: stop input stream: %w", err)
	}
	return nil
}

func (s *captureStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close input stream: %w", err)
	}
	return nil
}
