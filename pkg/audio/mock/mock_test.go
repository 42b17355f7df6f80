package mock

import (
	"bytes"
	"testing"

	"github.com/soundbench/voiceloop/pkg/audio"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCodec(audio.Format{SampleRate: 48000, Channels: 1})
	frame := audio.AudioFrame{Data: []byte{1, 2, 3, 4}, SampleRate: 48000, Channels: 1}

	packet, err := c.Encode(frame)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := c.Decode(packet)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !bytes.Equal(got.Data, frame.Data) {
		t.Errorf("Decode() data = %v, want %v", got.Data, frame.Data)
	}
}

func TestCodec_RejectsCorruptPacket(t *testing.T) {
	t.Parallel()

	c := NewCodec(audio.Format{SampleRate: 48000, Channels: 1})
	packet, err := c.Encode(audio.AudioFrame{Data: []byte{1, 2}, SampleRate: 48000, Channels: 1})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	if _, err := c.Decode(Corrupt(packet)); err == nil {
		t.Error("Decode() accepted a corrupted packet")
	}
	if _, err := c.Decode(nil); err == nil {
		t.Error("Decode() accepted an empty packet")
	}
}

func TestCaptureStream_ReadFailsAfterStop(t *testing.T) {
	t.Parallel()

	d := &CaptureDevice{Blocks: [][]int16{{1, 2}}}
	stream, err := d.Open(audio.Format{SampleRate: 48000, Channels: 1}, 2)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := stream.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := stream.Read(); err != nil {
		t.Fatalf("first Read() error: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if _, err := stream.Read(); err == nil {
		t.Error("Read() succeeded after Stop")
	}
}
