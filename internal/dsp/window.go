package dsp

import "math"

// HammingWindow returns a precomputed Hamming window of the given length.
func HammingWindow(size int) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	return w
}

// PreEmphasis applies y[n] = x[n] - coeff*x[n-1] into dst. The first sample
// uses x[-1] = 0. dst and src must have the same length.
func PreEmphasis(dst, src []float64, coeff float64) {
	if len(src) == 0 {
		return
	}
	dst[0] = src[0]
	for i := 1; i < len(src); i++ {
		dst[i] = src[i] - coeff*src[i-1]
	}
}
