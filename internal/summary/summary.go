// Package summary produces small visualization-facing reductions of audio:
// waveform peaks, an RMS level track, and a coarse mel spectrogram. These
// feed UIs and CLI output; nothing in scoring depends on them.
package summary

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/wildcall/callmatch-go/internal/dsp"
)

// PeakPair is the min/max excursion of one waveform bucket.
type PeakPair struct {
	Min float32
	Max float32
}

// WaveformPeaks reduces samples to the given number of min/max buckets,
// the usual input for drawing a waveform strip.
func WaveformPeaks(samples []float32, buckets int) []PeakPair {
	if buckets <= 0 || len(samples) == 0 {
		return nil
	}
	if buckets > len(samples) {
		buckets = len(samples)
	}
	out := make([]PeakPair, buckets)
	for b := range buckets {
		start := b * len(samples) / buckets
		end := (b + 1) * len(samples) / buckets
		pp := PeakPair{Min: samples[start], Max: samples[start]}
		for _, s := range samples[start:end] {
			if s < pp.Min {
				pp.Min = s
			}
			if s > pp.Max {
				pp.Max = s
			}
		}
		out[b] = pp
	}
	return out
}

// LevelTrack computes RMS level per window of the given duration in
// milliseconds.
func LevelTrack(samples []float32, sampleRate, windowMs int) []float32 {
	win := sampleRate * windowMs / 1000
	if win <= 0 || len(samples) == 0 {
		return nil
	}
	n := (len(samples) + win - 1) / win
	out := make([]float32, 0, n)
	for start := 0; start < len(samples); start += win {
		end := min(start+win, len(samples))
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s) * float64(s)
		}
		out = append(out, float32(math.Sqrt(sum/float64(end-start))))
	}
	return out
}

// spectrogramFFTSize fixes the analysis resolution of the coarse spectrogram.
const spectrogramFFTSize = 1024

// MelSpectrogram renders a coarse log-mel spectrogram with the requested
// number of frequency bands and time columns. Values are normalized to
// [0, 1] over the rendered area.
func MelSpectrogram(samples []float32, sampleRate, bands, cols int) [][]float32 {
	if bands <= 0 || cols <= 0 || len(samples) < spectrogramFFTSize {
		return nil
	}

	fft := fourier.NewFFT(spectrogramFFTSize)
	window := dsp.HammingWindow(spectrogramFFTSize)
	filters := dsp.MelFilterbank(bands, spectrogramFFTSize, sampleRate, 0, 0)

	hop := (len(samples) - spectrogramFFTSize) / cols
	if hop < 1 {
		hop = 1
		cols = (len(samples)-spectrogramFFTSize)/hop + 1
	}

	scratch := make([]float64, spectrogramFFTSize)
	coeffs := make([]complex128, spectrogramFFTSize/2+1)
	power := make([]float64, spectrogramFFTSize/2+1)

	out := make([][]float32, cols)
	minV, maxV := math.Inf(1), math.Inf(-1)
	for c := range cols {
		start := c * hop
		for i := range scratch {
			scratch[i] = float64(samples[start+i]) * window[i]
		}
		fft.Coefficients(coeffs, scratch)
		for i, cf := range coeffs {
			power[i] = real(cf)*real(cf) + imag(cf)*imag(cf)
		}

		col := make([]float32, bands)
		for b, filter := range filters {
			var sum float64
			for j, w := range filter {
				if w != 0 {
					sum += power[j] * w
				}
			}
			v := math.Log(sum + 1e-10)
			col[b] = float32(v)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		out[c] = col
	}

	// Normalize for display.
	span := maxV - minV
	if span <= 0 {
		span = 1
	}
	for _, col := range out {
		for i, v := range col {
			col[i] = float32((float64(v) - minV) / span)
		}
	}
	return out
}
