// Package dsp implements the frame-level feature extraction chain: windowing,
// FFT, mel filterbank and cepstral coefficients. All lookup tables are built
// once at extractor creation; extraction itself does not allocate.
package dsp

import (
	"math"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/wildcall/callmatch-go/internal/errors"
)

const componentDSP = "dsp"

// melFloor keeps filterbank outputs away from log(0).
const melFloor = 1e-10

// MFCCConfig holds the extractor parameters. Parameters are fixed for the
// lifetime of an extractor; sessions create one at setup.
type MFCCConfig struct {
	SampleRate  int
	FrameSize   int
	NumCoeffs   int
	NumFilters  int
	LowFreqHz   float64
	HighFreqHz  float64 // <= 0 means Nyquist
	PreEmphasis float64
}

// MFCCExtractor converts frame-sized sample windows into feature frames.
// Not safe for concurrent use; each session owns its own instance.
type MFCCExtractor struct {
	cfg     MFCCConfig
	window  []float64
	filters [][]float64
	dct     *DCT2
	fft     *fourier.FFT

	// per-frame scratch, reused across calls
	samples  []float64
	emphated []float64
	spectrum []complex128
	power    []float64
	melOut   []float64
	cepstra  []float64
	outF32   []float32
}

// NewMFCCExtractor validates the configuration and precomputes the window,
// filterbank and DCT basis.
func NewMFCCExtractor(cfg MFCCConfig) (*MFCCExtractor, error) {
	if cfg.SampleRate <= 0 {
		return nil, invalidParam("sample rate must be positive", "sample_rate", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 || cfg.FrameSize&(cfg.FrameSize-1) != 0 {
		return nil, invalidParam("frame size must be a positive power of two", "frame_size", cfg.FrameSize)
	}
	if cfg.NumCoeffs <= 0 || cfg.NumCoeffs > cfg.NumFilters {
		return nil, invalidParam("coefficient count must be positive and not exceed the filter count", "num_coeffs", cfg.NumCoeffs)
	}
	if cfg.NumFilters <= 0 {
		return nil, invalidParam("filter count must be positive", "num_filters", cfg.NumFilters)
	}

	nBins := cfg.FrameSize/2 + 1
	return &MFCCExtractor{
		cfg:      cfg,
		window:   HammingWindow(cfg.FrameSize),
		filters:  MelFilterbank(cfg.NumFilters, cfg.FrameSize, cfg.SampleRate, cfg.LowFreqHz, cfg.HighFreqHz),
		dct:      NewDCT2(cfg.NumCoeffs, cfg.NumFilters),
		fft:      fourier.NewFFT(cfg.FrameSize),
		samples:  make([]float64, cfg.FrameSize),
		emphated: make([]float64, cfg.FrameSize),
		spectrum: make([]complex128, nBins),
		power:    make([]float64, nBins),
		melOut:   make([]float64, cfg.NumFilters),
		cepstra:  make([]float64, cfg.NumCoeffs),
		outF32:   make([]float32, cfg.NumCoeffs),
	}, nil
}

// Config returns the extractor parameters.
func (e *MFCCExtractor) Config() MFCCConfig { return e.cfg }

// Extract runs the full chain on one frame and appends the result to dst.
// The frame must be exactly FrameSize mono samples in [-1, 1].
func (e *MFCCExtractor) Extract(frame []float32, ts time.Duration, dst *FeatureSequence) error {
	if len(frame) != e.cfg.FrameSize {
		return errors.Newf("frame has %d samples, extractor expects %d", len(frame), e.cfg.FrameSize).
			Component(componentDSP).
			Category(errors.CategoryInvalidAudio).
			Context("frame_len", len(frame)).
			Build()
	}

	for i, s := range frame {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Newf("non-finite sample at index %d", i).
				Component(componentDSP).
				Category(errors.CategoryInvalidAudio).
				Context("sample_index", i).
				Build()
		}
		e.samples[i] = f
	}

	PreEmphasis(e.emphated, e.samples, e.cfg.PreEmphasis)

	for i := range e.emphated {
		e.emphated[i] *= e.window[i]
	}

	e.fft.Coefficients(e.spectrum, e.emphated)

	var totalPower float64
	for i, c := range e.spectrum {
		p := real(c)*real(c) + imag(c)*imag(c)
		e.power[i] = p
		totalPower += p
	}

	for i, filter := range e.filters {
		var sum float64
		for j, w := range filter {
			if w != 0 {
				sum += e.power[j] * w
			}
		}
		if sum < melFloor {
			sum = melFloor
		}
		e.melOut[i] = math.Log(sum)
	}

	e.dct.Transform(e.cepstra, e.melOut)

	for i, c := range e.cepstra {
		e.outF32[i] = float32(c)
	}

	if totalPower < melFloor {
		totalPower = melFloor
	}
	dst.Append(e.outF32, float32(math.Log(totalPower)), ts)
	return nil
}

func invalidParam(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component(componentDSP).
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}
