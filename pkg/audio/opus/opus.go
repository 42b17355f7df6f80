// Package opus adapts the layeh.com/gopus Opus bindings to the voiceloop
// frame pipeline. The encoder and decoder are configured once at construction
// for the fixed session format: 48 kHz mono, 20 ms frames, voice application
// profile (lower algorithmic delay, tuned for speech rather than music).
package opus

import (
	"errors"
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/soundbench/voiceloop/pkg/audio"
)

// Defaults for the voiceloop session format.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 1
	DefaultFrameMs    = 20
	DefaultBitrate    = 32000

	// maxPacketBytes bounds a single encoded packet. Opus packets for one
	// 20 ms voice frame are far smaller; this matches the codec's own limit.
	maxPacketBytes = 4000
)

// ErrFrameSize reports that a frame handed to the encoder does not contain
// exactly one configured frame's worth of samples.
var ErrFrameSize = errors.New("opus: frame sample count does not match configured frame size")

// Params fixes the codec configuration at construction time.
type Params struct {
	// SampleRate in Hz. Opus accepts 8000, 12000, 16000, 24000, or 48000.
	SampleRate int

	// Channels: 1 or 2.
	Channels int

	// FrameMs is the frame duration in milliseconds (2.5–60 ms per the codec;
	// the session pipeline uses 20).
	FrameMs int

	// Bitrate in bits/s. Zero leaves the encoder's default untouched.
	Bitrate int
}

// DefaultParams returns the session format used by the record-then-play
// pipeline: 48 kHz mono, 20 ms frames, 32 kbit/s voice.
func DefaultParams() Params {
	return Params{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		FrameMs:    DefaultFrameMs,
		Bitrate:    DefaultBitrate,
	}
}

// frameSize returns the number of samples per channel per frame.
func (p Params) frameSize() int {
	return p.SampleRate * p.FrameMs / 1000
}

// Encoder wraps a gopus Opus encoder for a single capture stream. Encoder
// state carries across consecutive frames, so one Encoder must only serve one
// stream and must not be called concurrently.
type Encoder struct {
	enc       *gopus.Encoder
	params    Params
	frameSize int
}

// NewEncoder creates an Opus encoder in voice mode with the given parameters.
func NewEncoder(p Params) (*Encoder, error) {
	enc, err := gopus.NewEncoder(p.SampleRate, p.Channels, gopus.Voice)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	if p.Bitrate > 0 {
		enc.SetBitrate(p.Bitrate)
	}
	return &Encoder{enc: enc, params: p, frameSize: p.frameSize()}, nil
}

// Encode compresses one PCM frame into an Opus packet. The frame must contain
// exactly one configured frame's worth of samples; anything else fails with
// [ErrFrameSize] without touching encoder state.
func (e *Encoder) Encode(frame audio.AudioFrame) ([]byte, error) {
	pcm := audio.BytesToInt16s(frame.Data)
	if len(pcm) != e.frameSize*e.params.Channels {
		return nil, fmt.Errorf("%w: got %d samples, want %d",
			ErrFrameSize, len(pcm), e.frameSize*e.params.Channels)
	}
	packet, err := e.enc.Encode(pcm, e.frameSize, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return packet, nil
}

// Decoder wraps a gopus Opus decoder for a single packet stream. Like the
// encoder, it maintains state across consecutive packets and must not be
// called concurrently.
type Decoder struct {
	dec       *gopus.Decoder
	params    Params
	frameSize int
	decoded   int // frames decoded so far, drives output timestamps
}

// NewDecoder creates an Opus decoder with the given parameters. The
// parameters must match the encoder that produced the packets.
func NewDecoder(p Params) (*Decoder, error) {
	dec, err := gopus.NewDecoder(p.SampleRate, p.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec, params: p, frameSize: p.frameSize()}, nil
}

// Decode reconstructs one PCM frame from an Opus packet. Malformed packets
// and packets produced with incompatible parameters fail without advancing
// the output timestamp sequence.
func (d *Decoder) Decode(packet []byte) (audio.AudioFrame, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("opus: decode: %w", err)
	}
	frame := audio.AudioFrame{
		Data:       audio.Int16sToBytes(pcm),
		SampleRate: d.params.SampleRate,
		Channels:   d.params.Channels,
		Timestamp:  time.Duration(d.decoded) * frameDuration(d.params),
	}
	d.decoded++
	return frame, nil
}

func frameDuration(p Params) time.Duration {
	return time.Duration(p.FrameMs) * time.Millisecond
}
