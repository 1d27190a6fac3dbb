package summary

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

func TestWaveformPeaks(t *testing.T) {
	peaks := WaveformPeaks(tone(440, 44100, 44100), 100)
	require.Len(t, peaks, 100)
	for _, p := range peaks {
		assert.LessOrEqual(t, p.Min, p.Max)
		assert.InDelta(t, 0.5, float64(p.Max), 0.02, "full-cycle buckets reach the amplitude")
		assert.InDelta(t, -0.5, float64(p.Min), 0.02)
	}
}

func TestWaveformPeaksDegenerate(t *testing.T) {
	assert.Nil(t, WaveformPeaks(nil, 10))
	assert.Nil(t, WaveformPeaks(tone(440, 44100, 100), 0))
	assert.Len(t, WaveformPeaks(tone(440, 44100, 5), 10), 5)
}

func TestLevelTrack(t *testing.T) {
	levels := LevelTrack(tone(440, 44100, 44100), 44100, 100)
	require.Len(t, levels, 10)
	for _, l := range levels {
		// RMS of a 0.5-amplitude sine is 0.5/sqrt(2).
		assert.InDelta(t, 0.3535, float64(l), 0.01)
	}

	silence := LevelTrack(make([]float32, 44100), 44100, 100)
	for _, l := range silence {
		assert.Zero(t, l)
	}
}

func TestMelSpectrogramShapeAndRange(t *testing.T) {
	spec := MelSpectrogram(tone(1000, 44100, 44100), 44100, 32, 64)
	require.Len(t, spec, 64)
	for _, col := range spec {
		require.Len(t, col, 32)
		for _, v := range col {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
}

func TestMelSpectrogramTooShort(t *testing.T) {
	assert.Nil(t, MelSpectrogram(tone(440, 44100, 256), 44100, 16, 8))
}
