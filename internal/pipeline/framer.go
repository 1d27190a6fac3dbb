// Package pipeline implements the per-session streaming stages: chunk ring
// buffer, framing with hop stride, voice activity gating, and the float
// buffer pool that keeps the hot path allocation-free.
package pipeline

import (
	"time"

	"github.com/wildcall/callmatch-go/internal/errors"
)

const componentPipeline = "pipeline"

// EmitFunc receives each assembled frame. The slice is only valid for the
// duration of the call.
type EmitFunc func(frame []float32, ts time.Duration) error

// Framer assembles fixed-size windows with hop-size stride from arbitrary
// caller chunks. A residue buffer carries partial windows between calls; it
// never holds more than frameSize+hopSize samples.
type Framer struct {
	frameSize  int
	hopSize    int
	sampleRate int

	residue  []float32 // len < frameSize at rest
	frameBuf []float32 // scratch for residue-spanning frames

	nextFrameStart int64 // absolute sample index of the next frame to emit
	consumed       int64 // absolute sample count pushed so far
}

// NewFramer creates a framer. Parameters are assumed validated by the caller.
func NewFramer(frameSize, hopSize, sampleRate int) *Framer {
	return &Framer{
		frameSize:  frameSize,
		hopSize:    hopSize,
		sampleRate: sampleRate,
		residue:    make([]float32, 0, frameSize+hopSize),
		frameBuf:   make([]float32, frameSize),
	}
}

// Push feeds samples through the framer, invoking emit once per complete
// window. Frame timestamps are derived from the absolute sample position, so
// the emitted stream is identical for any chunking of the same audio.
func (f *Framer) Push(samples []float32, emit EmitFunc) error {
	chunkStart := f.consumed
	f.consumed += int64(len(samples))

	for f.nextFrameStart+int64(f.frameSize) <= f.consumed {
		frame, err := f.assemble(chunkStart, samples)
		if err != nil {
			return err
		}
		ts := time.Duration(f.nextFrameStart) * time.Second / time.Duration(f.sampleRate)
		if err := emit(frame, ts); err != nil {
			return err
		}
		f.nextFrameStart += int64(f.hopSize)
	}

	f.retainResidue(chunkStart, samples)
	return nil
}

// assemble returns the frame starting at f.nextFrameStart, pulling from the
// residue and the current chunk as needed.
func (f *Framer) assemble(chunkStart int64, samples []float32) ([]float32, error) {
	residueStart := chunkStart - int64(len(f.residue))
	if f.nextFrameStart >= chunkStart {
		// Entirely inside the current chunk: zero-copy view.
		off := f.nextFrameStart - chunkStart
		return samples[off : off+int64(f.frameSize)], nil
	}
	if f.nextFrameStart < residueStart {
		return nil, errors.Newf("frame start %d precedes retained residue %d", f.nextFrameStart, residueStart).
			Component(componentPipeline).
			Category(errors.CategoryInternal).
			Build()
	}
	// Spans the residue boundary: copy both parts into scratch.
	off := int(f.nextFrameStart - residueStart)
	n := copy(f.frameBuf, f.residue[off:])
	copy(f.frameBuf[n:], samples)
	return f.frameBuf, nil
}

// retainResidue keeps the samples the next frame still needs.
func (f *Framer) retainResidue(chunkStart int64, samples []float32) {
	residueStart := chunkStart - int64(len(f.residue))
	if f.nextFrameStart >= chunkStart {
		off := f.nextFrameStart - chunkStart
		f.residue = f.residue[:0]
		f.residue = append(f.residue, samples[off:]...)
		return
	}
	// Next frame begins inside the residue: shift and append the chunk.
	off := int(f.nextFrameStart - residueStart)
	kept := copy(f.residue, f.residue[off:])
	f.residue = f.residue[:kept]
	f.residue = append(f.residue, samples...)
}

// PendingSamples returns how many samples are buffered toward the next frame.
func (f *Framer) PendingSamples() int {
	return int(f.consumed - f.nextFrameStart)
}

// TotalSamples returns the total number of samples pushed.
func (f *Framer) TotalSamples() int64 { return f.consumed }

// Reset clears framer state for reuse.
func (f *Framer) Reset() {
	f.residue = f.residue[:0]
	f.nextFrameStart = 0
	f.consumed = 0
}
