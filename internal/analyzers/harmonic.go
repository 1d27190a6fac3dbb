package analyzers

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/wildcall/callmatch-go/internal/dsp"
)

// raspCutoffHz divides the band whose energy counts as high-frequency noise.
const raspCutoffHz = 4000.0

// roughnessPeaks caps how many spectral peaks enter the pairwise beating sum.
const roughnessPeaks = 10

// HarmonicConfig parameterizes the harmonic analyzer.
type HarmonicConfig struct {
	SampleRate int
	FFTSize    int     // independent of the MFCC frame size
	OverlapPct float64 // fraction of the window shared between hops
}

// HarmonicAnalyzer extracts spectral centroid, spread and the tonal-quality
// vector from its own overlapped FFT windows. Samples are pushed as they
// arrive; windows are analyzed as soon as they fill.
type HarmonicAnalyzer struct {
	cfg     HarmonicConfig
	hop     int
	fft     *fourier.FFT
	window  []float64
	buf     []float32 // pending samples, len < FFTSize + hop
	scratch []float64
	coeffs  []complex128
	mags    []float64

	// per-window accumulators
	centroids   []float64
	spreads     []float64
	rasps       []float64
	brights     []float64
	resonances  []float64
	roughnesses []float64
	snrs        []float64
}

// NewHarmonicAnalyzer builds the analyzer; FFTSize must be a power of two.
func NewHarmonicAnalyzer(cfg HarmonicConfig) *HarmonicAnalyzer {
	hop := int(float64(cfg.FFTSize) * (1 - cfg.OverlapPct))
	if hop < 1 {
		hop = 1
	}
	return &HarmonicAnalyzer{
		cfg:     cfg,
		hop:     hop,
		fft:     fourier.NewFFT(cfg.FFTSize),
		window:  dsp.HammingWindow(cfg.FFTSize),
		buf:     make([]float32, 0, cfg.FFTSize+cfg.FFTSize),
		scratch: make([]float64, cfg.FFTSize),
		coeffs:  make([]complex128, cfg.FFTSize/2+1),
		mags:    make([]float64, cfg.FFTSize/2+1),
	}
}

// Push feeds raw mono samples; complete windows are analyzed inline.
func (h *HarmonicAnalyzer) Push(samples []float32) {
	h.buf = append(h.buf, samples...)
	for len(h.buf) >= h.cfg.FFTSize {
		h.analyzeWindow(h.buf[:h.cfg.FFTSize])
		h.buf = h.buf[:copy(h.buf, h.buf[h.hop:])]
	}
}

func (h *HarmonicAnalyzer) analyzeWindow(win []float32) {
	for i, s := range win {
		h.scratch[i] = float64(s) * h.window[i]
	}
	h.fft.Coefficients(h.coeffs, h.scratch)

	var total float64
	for i, c := range h.coeffs {
		m := math.Hypot(real(c), imag(c))
		h.mags[i] = m
		total += m * m
	}
	if total < 1e-12 {
		return // silent window carries no tonal information
	}

	binHz := float64(h.cfg.SampleRate) / float64(h.cfg.FFTSize)
	nyquist := float64(h.cfg.SampleRate) / 2

	var weighted, magSum float64
	for i, m := range h.mags {
		weighted += float64(i) * binHz * m
		magSum += m
	}
	centroid := weighted / magSum

	var spread float64
	for i, m := range h.mags {
		d := float64(i)*binHz - centroid
		spread += d * d * m
	}
	spread = math.Sqrt(spread / magSum)

	var hfEnergy float64
	cutoffBin := int(raspCutoffHz / binHz)
	for i := cutoffBin; i < len(h.mags); i++ {
		hfEnergy += h.mags[i] * h.mags[i]
	}

	resonance, snr := h.resonanceAndSNR(binHz)

	h.centroids = append(h.centroids, centroid)
	h.spreads = append(h.spreads, spread)
	h.rasps = append(h.rasps, clip01(hfEnergy/total))
	h.brights = append(h.brights, clip01(centroid/nyquist))
	h.resonances = append(h.resonances, resonance)
	h.roughnesses = append(h.roughnesses, h.roughness(binHz))
	h.snrs = append(h.snrs, snr)
}

// resonanceAndSNR locates the dominant fundamental and compares energy at
// harmonic multiples against the inter-harmonic valleys.
func (h *HarmonicAnalyzer) resonanceAndSNR(binHz float64) (resonance, snr float64) {
	loBin := int(60 / binHz)
	hiBin := int(2500 / binHz)
	if hiBin > len(h.mags)-1 {
		hiBin = len(h.mags) - 1
	}
	f0Bin := loBin
	for i := loBin; i <= hiBin; i++ {
		if h.mags[i] > h.mags[f0Bin] {
			f0Bin = i
		}
	}
	if f0Bin <= 0 || h.mags[f0Bin] == 0 {
		return 0, 0
	}

	var peakEnergy, valleyEnergy float64
	harmonics := 0
	for k := 1; k <= 8; k++ {
		peak := k * f0Bin
		valley := peak + f0Bin/2
		if valley >= len(h.mags) {
			break
		}
		peakEnergy += h.mags[peak] * h.mags[peak]
		valleyEnergy += h.mags[valley] * h.mags[valley]
		harmonics++
	}
	if harmonics == 0 {
		return 0, 0
	}

	ratio := peakEnergy / (valleyEnergy + 1e-12)
	resonance = clip01(ratio / (ratio + 10)) // soft-knee mapping to [0,1]

	// Harmonic SNR drives the profile confidence.
	snr = clip01(math.Log10(1+ratio) / 3)
	return resonance, snr
}

// roughness approximates Plomp-Levelt beating: the strongest peaks are
// paired and each pair contributes by how close it sits to the maximum
// dissonance interval.
func (h *HarmonicAnalyzer) roughness(binHz float64) float64 {
	type peak struct {
		freq float64
		mag  float64
	}
	var peaks []peak
	for i := 2; i < len(h.mags)-1; i++ {
		if h.mags[i] > h.mags[i-1] && h.mags[i] > h.mags[i+1] {
			peaks = append(peaks, peak{freq: float64(i) * binHz, mag: h.mags[i]})
		}
	}
	if len(peaks) < 2 {
		return 0
	}
	// Keep the strongest few.
	for i := range peaks {
		for j := i + 1; j < len(peaks); j++ {
			if peaks[j].mag > peaks[i].mag {
				peaks[i], peaks[j] = peaks[j], peaks[i]
			}
		}
	}
	if len(peaks) > roughnessPeaks {
		peaks = peaks[:roughnessPeaks]
	}

	var rough, norm float64
	for i := range peaks {
		for j := i + 1; j < len(peaks); j++ {
			fmin := math.Min(peaks[i].freq, peaks[j].freq)
			if fmin <= 0 {
				continue
			}
			// Critical bandwidth approximation; dissonance peaks near a
			// quarter of the critical band.
			cb := 0.24*fmin + 25
			x := math.Abs(peaks[i].freq-peaks[j].freq) / cb
			d := x * math.Exp(1-x) // unimodal, max 1 at x=1
			w := peaks[i].mag * peaks[j].mag
			rough += d * w
			norm += w
		}
	}
	if norm == 0 {
		return 0
	}
	return clip01(rough / norm)
}

// WindowCount returns how many windows were analyzed.
func (h *HarmonicAnalyzer) WindowCount() int { return len(h.centroids) }

// Profile summarizes the analyzed windows.
func (h *HarmonicAnalyzer) Profile() HarmonicProfile {
	if len(h.centroids) == 0 {
		return HarmonicProfile{}
	}
	return HarmonicProfile{
		CentroidHz: mean(h.centroids),
		SpreadHz:   mean(h.spreads),
		Tonal: TonalQuality{
			Rasp:       mean(h.rasps),
			Brightness: mean(h.brights),
			Resonance:  mean(h.resonances),
			Roughness:  mean(h.roughnesses),
		},
		Confidence: mean(h.snrs),
	}
}

// Reset clears accumulated state.
func (h *HarmonicAnalyzer) Reset() {
	h.buf = h.buf[:0]
	h.centroids = h.centroids[:0]
	h.spreads = h.spreads[:0]
	h.rasps = h.rasps[:0]
	h.brights = h.brights[:0]
	h.resonances = h.resonances[:0]
	h.roughnesses = h.roughnesses[:0]
	h.snrs = h.snrs[:0]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
