package audio_test

import (
	"testing"
	"time"

	"github.com/soundbench/voiceloop/pkg/audio"
)

var testFormat = audio.Format{SampleRate: 48000, Channels: 1}

// block returns n int16 samples with ascending values starting at base.
func block(base, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(base + i)
	}
	return s
}

func collect(frames *[]audio.AudioFrame) func(audio.AudioFrame) {
	return func(f audio.AudioFrame) { *frames = append(*frames, f) }
}

func TestFramer_ExactBlocks(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(testFormat, 960)
	var frames []audio.AudioFrame

	f.Push(block(0, 960), collect(&frames))
	f.Push(block(960, 960), collect(&frames))

	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if f.Residue() != 0 {
		t.Errorf("Residue() = %d, want 0", f.Residue())
	}
	for i, fr := range frames {
		if fr.Samples() != 960 {
			t.Errorf("frame %d samples = %d, want 960", i, fr.Samples())
		}
	}
	// Sample continuity across the frame boundary.
	pcm := audio.BytesToInt16s(frames[1].Data)
	if pcm[0] != 960 {
		t.Errorf("second frame starts at sample %d, want 960", pcm[0])
	}
}

func TestFramer_ReassemblesOddBlockSizes(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(testFormat, 960)
	var frames []audio.AudioFrame

	// 512-sample device blocks: 4 pushes = 2048 samples = 2 frames + 128 residue.
	for i := range 4 {
		f.Push(block(i*512, 512), collect(&frames))
	}

	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if f.Residue() != 128 {
		t.Errorf("Residue() = %d, want 128", f.Residue())
	}

	// Frames must be contiguous: sample k of the stream appears exactly once.
	all := append(audio.BytesToInt16s(frames[0].Data), audio.BytesToInt16s(frames[1].Data)...)
	for i, s := range all {
		if s != int16(i) {
			t.Fatalf("sample %d = %d, want %d", i, s, i)
		}
	}
}

func TestFramer_ResidueDroppedOnReset(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(testFormat, 960)
	var frames []audio.AudioFrame

	f.Push(block(0, 500), collect(&frames))
	if len(frames) != 0 {
		t.Fatalf("partial push emitted %d frames, want 0", len(frames))
	}
	if f.Residue() != 500 {
		t.Errorf("Residue() = %d, want 500", f.Residue())
	}

	f.Reset()
	if f.Residue() != 0 {
		t.Errorf("Residue() after Reset = %d, want 0", f.Residue())
	}

	// After reset, timestamps restart at zero.
	f.Push(block(0, 960), collect(&frames))
	if len(frames) != 1 {
		t.Fatalf("frames after reset = %d, want 1", len(frames))
	}
	if frames[0].Timestamp != 0 {
		t.Errorf("first frame timestamp = %v, want 0", frames[0].Timestamp)
	}
}

func TestFramer_TimestampsFollowCadence(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(testFormat, 960)
	var frames []audio.AudioFrame

	f.Push(block(0, 960*3), collect(&frames))

	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	for i, fr := range frames {
		want := time.Duration(i) * 20 * time.Millisecond
		if fr.Timestamp != want {
			t.Errorf("frame %d timestamp = %v, want %v", i, fr.Timestamp, want)
		}
	}
}

func TestFramer_Stereo(t *testing.T) {
	t.Parallel()

	stereo := audio.Format{SampleRate: 48000, Channels: 2}
	f := audio.NewFramer(stereo, 960)
	var frames []audio.AudioFrame

	// One stereo frame needs 1920 interleaved samples.
	f.Push(block(0, 1920), collect(&frames))

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Samples() != 960 {
		t.Errorf("Samples() = %d, want 960", frames[0].Samples())
	}
	if frames[0].Duration() != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", frames[0].Duration())
	}
}
