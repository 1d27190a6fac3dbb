package analyzers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func harmonicConfig() HarmonicConfig {
	return HarmonicConfig{
		SampleRate: 44100,
		FFTSize:    4096,
		OverlapPct: 0.75,
	}
}

func TestHarmonicAnalyzerCentroidTracksPitch(t *testing.T) {
	low := NewHarmonicAnalyzer(harmonicConfig())
	high := NewHarmonicAnalyzer(harmonicConfig())

	low.Push(sine(440, 44100, 44100, 0.5))
	high.Push(sine(2000, 44100, 44100, 0.5))

	require.Positive(t, low.WindowCount())
	require.Positive(t, high.WindowCount())

	lp := low.Profile()
	hp := high.Profile()
	assert.Less(t, lp.CentroidHz, hp.CentroidHz)
	assert.Less(t, lp.Tonal.Brightness, hp.Tonal.Brightness)
}

func TestHarmonicAnalyzerCentroidNearTone(t *testing.T) {
	h := NewHarmonicAnalyzer(harmonicConfig())
	h.Push(sine(1000, 44100, 44100, 0.5))
	prof := h.Profile()
	// A pure tone concentrates the spectrum near its frequency.
	assert.InDelta(t, 1000, prof.CentroidHz, 250)
}

func TestHarmonicAnalyzerTonalRanges(t *testing.T) {
	h := NewHarmonicAnalyzer(harmonicConfig())
	// Sawtooth-ish: strong harmonic series.
	n := 44100
	buf := make([]float32, n)
	for i := range buf {
		var v float64
		for k := 1; k <= 8; k++ {
			v += math.Sin(2*math.Pi*220*float64(k)*float64(i)/44100) / float64(k)
		}
		buf[i] = float32(0.2 * v)
	}
	h.Push(buf)

	prof := h.Profile()
	for name, v := range map[string]float64{
		"rasp":       prof.Tonal.Rasp,
		"brightness": prof.Tonal.Brightness,
		"resonance":  prof.Tonal.Resonance,
		"roughness":  prof.Tonal.Roughness,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.Greater(t, prof.Confidence, 0.0, "harmonic series should yield confidence")
	assert.Greater(t, prof.Tonal.Resonance, 0.2, "strong harmonics imply resonance")
}

func TestHarmonicAnalyzerSilence(t *testing.T) {
	h := NewHarmonicAnalyzer(harmonicConfig())
	h.Push(make([]float32, 44100))
	prof := h.Profile()
	assert.Zero(t, prof.CentroidHz)
	assert.Zero(t, prof.Confidence)
}

func TestHarmonicAnalyzerOverlapWindowCount(t *testing.T) {
	h := NewHarmonicAnalyzer(harmonicConfig())
	h.Push(sine(440, 44100, 44100, 0.5))
	// One second at hop 1024 yields about 40 windows.
	want := (44100-4096)/1024 + 1
	assert.InDelta(t, want, h.WindowCount(), 2)
}
