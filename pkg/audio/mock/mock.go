// Package mock provides in-memory implementations of the audio device and
// codec interfaces for testing pipelines and the session controller without
// real hardware or the native Opus library.
package mock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soundbench/voiceloop/pkg/audio"
)

// ErrStreamStopped is returned by mock stream operations after Stop.
var ErrStreamStopped = errors.New("mock: stream stopped")

// CaptureDevice is a scriptable audio.CaptureDevice. Each Open returns a
// stream that delivers the configured Blocks in order, then blocks until the
// stream is stopped (mimicking a device waiting on the next cadence tick).
type CaptureDevice struct {
	// Blocks are the sample blocks the stream delivers, one per Read.
	Blocks [][]int16

	// AvailableErr, when non-nil, is returned by Available.
	AvailableErr error

	// OpenErr, when non-nil, is returned by Open.
	OpenErr error

	mu        sync.Mutex
	openCalls int
	streams   []*CaptureStream
}

// Available implements audio.CaptureDevice.
func (d *CaptureDevice) Available() error { return d.AvailableErr }

// Open implements audio.CaptureDevice.
func (d *CaptureDevice) Open(_ audio.Format, _ int) (audio.CaptureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &CaptureStream{blocks: d.Blocks, stopped: make(chan struct{})}
	d.streams = append(d.streams, s)
	return s, nil
}

// OpenCalls reports how many times Open was invoked.
func (d *CaptureDevice) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls
}

// CaptureStream is the stream returned by [CaptureDevice.Open].
type CaptureStream struct {
	blocks  [][]int16
	stopped chan struct{}

	mu       sync.Mutex
	next     int
	started  bool
	stopOnce sync.Once
}

// Start implements audio.CaptureStream.
func (s *CaptureStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Read delivers the next scripted block. Once the script is exhausted it
// blocks until Stop, then fails like a real device whose stream was halted.
func (s *CaptureStream) Read() ([]int16, error) {
	s.mu.Lock()
	if s.next < len(s.blocks) {
		select {
		case <-s.stopped:
			s.mu.Unlock()
			return nil, ErrStreamStopped
		default:
		}
		b := s.blocks[s.next]
		s.next++
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	<-s.stopped
	return nil, ErrStreamStopped
}

// Stop implements audio.CaptureStream. Safe to call more than once.
func (s *CaptureStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

// Close implements audio.CaptureStream.
func (s *CaptureStream) Close() error { return s.Stop() }

// PlaybackDevice is a recording audio.PlaybackDevice. Streams it opens
// capture every written block for later inspection.
type PlaybackDevice struct {
	// AvailableErr, when non-nil, is returned by Available.
	AvailableErr error

	// OpenErr, when non-nil, is returned by Open.
	OpenErr error

	// FailWriteAt makes the Nth Write (1-based) fail, simulating a device
	// lost mid-playback. Zero disables the failure.
	FailWriteAt int

	mu      sync.Mutex
	streams []*PlaybackStream
}

// Available implements audio.PlaybackDevice.
func (d *PlaybackDevice) Available() error { return d.AvailableErr }

// Open implements audio.PlaybackDevice.
func (d *PlaybackDevice) Open(_ audio.Format, _ int) (audio.PlaybackStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &PlaybackStream{failWriteAt: d.FailWriteAt}
	d.streams = append(d.streams, s)
	return s, nil
}

// Written returns all blocks written across every stream opened so far,
// in write order.
func (d *PlaybackDevice) Written() [][]int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out [][]int16
	for _, s := range d.streams {
		out = append(out, s.WrittenBlocks()...)
	}
	return out
}

// PlaybackStream is the stream returned by [PlaybackDevice.Open].
type PlaybackStream struct {
	failWriteAt int

	mu      sync.Mutex
	written [][]int16
	writes  int
	stopped bool
}

// Start implements audio.PlaybackStream.
func (s *PlaybackStream) Start() error { return nil }

// Write records the block. The copy matters: callers reuse their buffers.
func (s *PlaybackStream) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failWriteAt > 0 && s.writes >= s.failWriteAt {
		return fmt.Errorf("mock: output device lost at write %d", s.writes)
	}
	cp := make([]int16, len(samples))
	copy(cp, samples)
	s.written = append(s.written, cp)
	return nil
}

// Stop implements audio.PlaybackStream.
func (s *PlaybackStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// Close implements audio.PlaybackStream.
func (s *PlaybackStream) Close() error { return nil }

// WrittenBlocks returns the blocks written to this stream, in order.
func (s *PlaybackStream) WrittenBlocks() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int16, len(s.written))
	copy(out, s.written)
	return out
}

// Codec is a fake Encoder/Decoder pair that wraps PCM verbatim into tagged
// packets, so tests can verify ordering and corruption handling without the
// native Opus library.
//
// A packet is the frame's PCM bytes prefixed with a one-byte tag. Decode
// rejects packets whose tag is wrong, which is how tests model corruption.
type Codec struct {
	format  audio.Format
	mu      sync.Mutex
	encoded int
	decoded int
	// FailDecodeAt makes the Nth Decode call (1-based) fail.
	FailDecodeAt int
}

// packetTag marks packets produced by this codec.
const packetTag = 0x5a

// NewCodec creates a mock codec producing frames in the given format.
func NewCodec(format audio.Format) *Codec {
	return &Codec{format: format}
}

// Encode implements audio.Encoder.
func (c *Codec) Encode(frame audio.AudioFrame) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoded++
	packet := make([]byte, 1+len(frame.Data))
	packet[0] = packetTag
	copy(packet[1:], frame.Data)
	return packet, nil
}

// Decode implements audio.Decoder.
func (c *Codec) Decode(packet []byte) (audio.AudioFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoded++
	if c.FailDecodeAt > 0 && c.decoded == c.FailDecodeAt {
		return audio.AudioFrame{}, fmt.Errorf("mock: decode failure injected at packet %d", c.decoded)
	}
	if len(packet) == 0 || packet[0] != packetTag {
		return audio.AudioFrame{}, errors.New("mock: malformed packet")
	}
	return audio.AudioFrame{
		Data:       packet[1:],
		SampleRate: c.format.SampleRate,
		Channels:   c.format.Channels,
	}, nil
}

// EncodeCalls reports how many times Encode was invoked.
func (c *Codec) EncodeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoded
}

// DecodeCalls reports how many times Decode was invoked.
func (c *Codec) DecodeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decoded
}

// Corrupt returns a copy of packet with its tag byte flipped, producing a
// packet that [Codec.Decode] rejects.
func Corrupt(packet []byte) []byte {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	if len(cp) > 0 {
		cp[0] ^= 0xff
	}
	return cp
}
