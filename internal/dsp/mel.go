package dsp

import "math"

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel value back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// MelFilterbank builds numFilters triangular filters over the power spectrum
// of a size-frameSize FFT at the given sample rate. Filters are spaced
// linearly on the mel scale between lowHz and highHz; highHz <= 0 means
// Nyquist. Each filter spans nBins = frameSize/2 + 1 weights.
func MelFilterbank(numFilters, frameSize, sampleRate int, lowHz, highHz float64) [][]float64 {
	nBins := frameSize/2 + 1
	if highHz <= 0 || highHz > float64(sampleRate)/2 {
		highHz = float64(sampleRate) / 2
	}
	if lowHz < 0 {
		lowHz = 0
	}

	lowMel := hzToMel(lowHz)
	highMel := hzToMel(highHz)

	// numFilters+2 mel-spaced edge points, converted back to FFT bin indices
	binPoints := make([]int, numFilters+2)
	for i := range binPoints {
		mel := lowMel + float64(i)*(highMel-lowMel)/float64(numFilters+1)
		hz := melToHz(mel)
		binPoints[i] = int(math.Floor(hz * float64(frameSize) / float64(sampleRate)))
		if binPoints[i] > nBins-1 {
			binPoints[i] = nBins - 1
		}
	}

	filters := make([][]float64, numFilters)
	for i := range numFilters {
		filters[i] = make([]float64, nBins)

		for j := binPoints[i]; j < binPoints[i+1] && j < nBins; j++ {
			if binPoints[i+1] != binPoints[i] {
				filters[i][j] = float64(j-binPoints[i]) / float64(binPoints[i+1]-binPoints[i])
			}
		}
		for j := binPoints[i+1]; j < binPoints[i+2] && j < nBins; j++ {
			if binPoints[i+2] != binPoints[i+1] {
				filters[i][j] = float64(binPoints[i+2]-j) / float64(binPoints[i+2]-binPoints[i+1])
			}
		}
	}

	return filters
}
