package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectFrames(t *testing.T, f *Framer, chunks [][]float32) ([][]float32, []time.Duration) {
	t.Helper()
	var frames [][]float32
	var stamps []time.Duration
	emit := func(frame []float32, ts time.Duration) error {
		cp := make([]float32, len(frame))
		copy(cp, frame)
		frames = append(frames, cp)
		stamps = append(stamps, ts)
		return nil
	}
	for _, c := range chunks {
		require.NoError(t, f.Push(c, emit))
	}
	return frames, stamps
}

func sineSignal(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

func TestFramerFrameCount(t *testing.T) {
	const frameSize, hopSize, sr = 512, 256, 44100
	signal := sineSignal(440, sr, sr) // 1 second

	f := NewFramer(frameSize, hopSize, sr)
	frames, _ := collectFrames(t, f, [][]float32{signal})

	want := (len(signal)-frameSize)/hopSize + 1
	assert.Len(t, frames, want)
}

func TestFramerChunkInvariance(t *testing.T) {
	const frameSize, hopSize, sr = 512, 256, 44100
	signal := sineSignal(440, sr, 2*sr)

	oneShot := NewFramer(frameSize, hopSize, sr)
	wantFrames, wantStamps := collectFrames(t, oneShot, [][]float32{signal})

	// Chunk into 17-sample pieces.
	var chunks [][]float32
	for i := 0; i < len(signal); i += 17 {
		end := min(i+17, len(signal))
		chunks = append(chunks, signal[i:end])
	}
	chunked := NewFramer(frameSize, hopSize, sr)
	gotFrames, gotStamps := collectFrames(t, chunked, chunks)

	require.Equal(t, len(wantFrames), len(gotFrames))
	assert.Equal(t, wantStamps, gotStamps)
	for i := range wantFrames {
		assert.Equal(t, wantFrames[i], gotFrames[i], "frame %d differs", i)
	}
}

func TestFramerEmptyPush(t *testing.T) {
	f := NewFramer(512, 256, 44100)
	frames, _ := collectFrames(t, f, [][]float32{{}})
	assert.Empty(t, frames)
	assert.Equal(t, int64(0), f.TotalSamples())
}

func TestFramerResidueBounded(t *testing.T) {
	const frameSize, hopSize = 512, 256
	f := NewFramer(frameSize, hopSize, 44100)
	emit := func(frame []float32, ts time.Duration) error { return nil }

	signal := sineSignal(440, 44100, 44100)
	for i := 0; i < len(signal); i += 100 {
		end := min(i+100, len(signal))
		require.NoError(t, f.Push(signal[i:end], emit))
		assert.Less(t, f.PendingSamples(), frameSize, "pending samples must stay below a full frame")
	}
}

func TestFramerTimestampsMonotonic(t *testing.T) {
	const frameSize, hopSize, sr = 512, 256, 44100
	f := NewFramer(frameSize, hopSize, sr)
	_, stamps := collectFrames(t, f, [][]float32{sineSignal(300, sr, sr)})

	require.NotEmpty(t, stamps)
	assert.Equal(t, time.Duration(0), stamps[0])
	for i := 1; i < len(stamps); i++ {
		assert.Greater(t, stamps[i], stamps[i-1])
	}
	// Second frame starts at hopSize samples.
	wantSecond := time.Duration(hopSize) * time.Second / time.Duration(sr)
	assert.Equal(t, wantSecond, stamps[1])
}
