package analyzers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pitchConfig() PitchConfig {
	return PitchConfig{
		SampleRate: 44100,
		FrameSize:  2048,
		MinFreqHz:  80,
		MaxFreqHz:  2000,
		Threshold:  0.2,
	}
}

func sine(freq float64, sr, n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

func TestPitchTrackerDetects440(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	frame := sine(440, 44100, 2048, 0.5)

	r := p.ProcessFrame(frame, 0)
	require.True(t, r.Voiced)
	assert.InDelta(t, 440, r.FrequencyHz, 5, "440 Hz sine should track within 5 Hz")
	assert.Greater(t, r.Confidence, 0.8)
}

func TestPitchTrackerOctaveSeparation(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	low := p.ProcessFrame(sine(440, 44100, 2048, 0.5), 0)
	high := p.ProcessFrame(sine(880, 44100, 2048, 0.5), 0)

	require.True(t, low.Voiced)
	require.True(t, high.Voiced)
	ratio := high.FrequencyHz / low.FrequencyHz
	assert.InDelta(t, 2.0, ratio, 0.05)
}

func TestPitchTrackerSilenceIsUnvoiced(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	r := p.ProcessFrame(make([]float32, 2048), 0)
	assert.False(t, r.Voiced)
	assert.Zero(t, r.Confidence)
}

func TestPitchTrackerNoiseIsUnvoicedOrLowConfidence(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	// Deterministic pseudo-noise.
	frame := make([]float32, 2048)
	seed := uint32(12345)
	for i := range frame {
		seed = seed*1664525 + 1013904223
		frame[i] = (float32(seed>>16)/32768 - 1) * 0.5
	}
	r := p.ProcessFrame(frame, 0)
	if r.Voiced {
		assert.Less(t, r.Confidence, 0.9, "white noise must not track with high confidence")
	}
}

func TestPitchProfileMedian(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	for range 20 {
		p.ProcessFrame(sine(440, 44100, 2048, 0.5), 0)
	}
	prof := p.Profile()
	assert.InDelta(t, 440, prof.MedianF0Hz, 5)
	assert.Greater(t, prof.Confidence, 0.8)
	assert.False(t, prof.Vibrato, "steady tone has no vibrato")
}

func TestPitchProfileVibrato(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	// Alternate two pitches a semitone apart; deviation well above the floor.
	for i := range 24 {
		freq := 440.0
		if i%2 == 1 {
			freq = 466.16
		}
		p.ProcessFrame(sine(freq, 44100, 2048, 0.5), 0)
	}
	prof := p.Profile()
	assert.True(t, prof.Vibrato)
}

func TestPitchProfileEmptyTrack(t *testing.T) {
	p := NewPitchTracker(pitchConfig())
	prof := p.Profile()
	assert.Zero(t, prof.MedianF0Hz)
	assert.Zero(t, prof.Confidence)
}
