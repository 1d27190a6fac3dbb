package analyzers

import (
	"math"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/wildcall/callmatch-go/internal/dsp"
)

// cadenceFFTSize and cadenceHop fix the novelty-curve resolution; a hop of
// 512 at 44.1 kHz samples the onset envelope every ~11.6 ms.
const (
	cadenceFFTSize = 1024
	cadenceHop     = 512
)

// CadenceConfig parameterizes tempo estimation.
type CadenceConfig struct {
	SampleRate  int
	MinTempoBPM float64
	MaxTempoBPM float64
}

// CadenceAnalyzer derives an onset envelope from spectral flux and estimates
// the dominant tempo from its autocorrelation.
type CadenceAnalyzer struct {
	cfg    CadenceConfig
	fft    *fourier.FFT
	window []float64

	buf      []float32
	scratch  []float64
	coeffs   []complex128
	mags     []float64
	prevMags []float64
	envelope []float64
}

// NewCadenceAnalyzer builds the analyzer.
func NewCadenceAnalyzer(cfg CadenceConfig) *CadenceAnalyzer {
	return &CadenceAnalyzer{
		cfg:      cfg,
		fft:      fourier.NewFFT(cadenceFFTSize),
		window:   dsp.HammingWindow(cadenceFFTSize),
		buf:      make([]float32, 0, 2*cadenceFFTSize),
		scratch:  make([]float64, cadenceFFTSize),
		coeffs:   make([]complex128, cadenceFFTSize/2+1),
		mags:     make([]float64, cadenceFFTSize/2+1),
		prevMags: make([]float64, cadenceFFTSize/2+1),
	}
}

// Push feeds raw mono samples; the onset envelope grows one point per hop.
func (c *CadenceAnalyzer) Push(samples []float32) {
	c.buf = append(c.buf, samples...)
	for len(c.buf) >= cadenceFFTSize {
		c.processWindow(c.buf[:cadenceFFTSize])
		c.buf = c.buf[:copy(c.buf, c.buf[cadenceHop:])]
	}
}

// processWindow appends one spectral-flux novelty value.
func (c *CadenceAnalyzer) processWindow(win []float32) {
	for i, s := range win {
		c.scratch[i] = float64(s) * c.window[i]
	}
	c.fft.Coefficients(c.coeffs, c.scratch)

	var flux float64
	for i, coeff := range c.coeffs {
		m := math.Hypot(real(coeff), imag(coeff))
		if diff := m - c.prevMags[i]; diff > 0 {
			flux += diff * diff
		}
		c.mags[i] = m
	}
	c.mags, c.prevMags = c.prevMags, c.mags

	c.envelope = append(c.envelope, math.Sqrt(flux))
}

// EnvelopeLen returns the number of novelty points accumulated.
func (c *CadenceAnalyzer) EnvelopeLen() int { return len(c.envelope) }

// Profile estimates tempo from the onset-envelope autocorrelation. The
// confidence equals the normalized autocorrelation peak; when the envelope
// does not reach past the lag of the fastest allowed tempo (about a third of
// a second of audio at 44.1 kHz and 200 BPM) the profile comes back empty.
func (c *CadenceAnalyzer) Profile() CadenceProfile {
	hopDur := float64(cadenceHop) / float64(c.cfg.SampleRate)

	minLag := int(60 / c.cfg.MaxTempoBPM / hopDur)
	maxLag := int(60 / c.cfg.MinTempoBPM / hopDur)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(c.envelope) {
		maxLag = len(c.envelope) - 1
	}
	if maxLag <= minLag {
		return CadenceProfile{}
	}

	// Zero-lag energy normalizes the peak.
	var zero float64
	for _, v := range c.envelope {
		zero += v * v
	}
	if zero == 0 {
		return CadenceProfile{}
	}

	bestLag, bestCorr := minLag, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(c.envelope); i++ {
			corr += c.envelope[i] * c.envelope[i+lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	tempo := 60 / (float64(bestLag) * hopDur)
	if tempo < c.cfg.MinTempoBPM {
		tempo = c.cfg.MinTempoBPM
	}
	if tempo > c.cfg.MaxTempoBPM {
		tempo = c.cfg.MaxTempoBPM
	}

	strength := clip01(bestCorr / zero)
	return CadenceProfile{
		TempoBPM:            tempo,
		PeriodicityStrength: strength,
		OnsetTimes:          c.onsetTimes(hopDur),
		Confidence:          strength,
	}
}

// onsetTimes returns the timestamps of envelope peaks above one standard
// deviation over the mean.
func (c *CadenceAnalyzer) onsetTimes(hopDur float64) []time.Duration {
	if len(c.envelope) < 3 {
		return nil
	}
	m := mean(c.envelope)
	var variance float64
	for _, v := range c.envelope {
		variance += (v - m) * (v - m)
	}
	threshold := m + math.Sqrt(variance/float64(len(c.envelope)))

	var onsets []time.Duration
	for i := 1; i < len(c.envelope)-1; i++ {
		v := c.envelope[i]
		if v > threshold && v > c.envelope[i-1] && v >= c.envelope[i+1] {
			onsets = append(onsets, time.Duration(float64(i)*hopDur*float64(time.Second)))
		}
	}
	return onsets
}

// Reset clears accumulated state.
func (c *CadenceAnalyzer) Reset() {
	c.buf = c.buf[:0]
	c.envelope = c.envelope[:0]
	for i := range c.prevMags {
		c.prevMags[i] = 0
	}
}
