package audio

import "time"

// Framer assembles arbitrarily sized blocks of PCM samples into exact
// fixed-duration frames. The capture device delivers whatever block size the
// host prefers; the codec requires exactly one frame's worth of samples, so
// the Framer buffers the remainder between pushes.
//
// Samples that never complete a frame (the residue at stream stop) are
// dropped, never emitted as a partial frame.
//
// Not safe for concurrent use; a Framer belongs to a single capture goroutine.
type Framer struct {
	format    Format
	frameSize int // samples per channel per frame
	buf       []int16
	emitted   int // frames emitted so far, drives timestamps
}

// NewFramer creates a Framer producing frames of frameSize samples per
// channel in the given format.
func NewFramer(format Format, frameSize int) *Framer {
	return &Framer{
		format:    format,
		frameSize: frameSize,
		buf:       make([]int16, 0, frameSize*format.Channels*2),
	}
}

// Push appends samples to the pending buffer and invokes emit once per
// completed frame, in order. The samples slice is copied; callers may reuse it
// immediately (capture devices hand out their internal read buffer).
func (f *Framer) Push(samples []int16, emit func(AudioFrame)) {
	f.buf = append(f.buf, samples...)

	need := f.frameSize * f.format.Channels
	for len(f.buf) >= need {
		frame := AudioFrame{
			Data:       Int16sToBytes(f.buf[:need]),
			SampleRate: f.format.SampleRate,
			Channels:   f.format.Channels,
			Timestamp:  time.Duration(f.emitted) * f.frameDuration(),
		}
		f.buf = f.buf[:copy(f.buf, f.buf[need:])]
		f.emitted++
		emit(frame)
	}
}

// Residue returns the number of buffered samples that have not yet completed
// a frame. A non-zero residue at stop means those samples will be dropped.
func (f *Framer) Residue() int {
	return len(f.buf)
}

// Reset discards any buffered residue and restarts the timestamp sequence.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.emitted = 0
}

func (f *Framer) frameDuration() time.Duration {
	return time.Duration(f.frameSize) * time.Second / time.Duration(f.format.SampleRate)
}
