// conf/validate.go settings validation
package conf

import (
	"github.com/wildcall/callmatch-go/internal/errors"
)

// ValidateSettings checks the loaded configuration for values that violate
// documented constraints. The first violation is returned.
func ValidateSettings(s *Settings) error {
	if s.Engine.MaxSessions <= 0 {
		return validationError("engine.maxsessions must be positive", "engine.maxsessions", s.Engine.MaxSessions)
	}
	if s.Engine.MinFeatureFrames <= 0 {
		return validationError("engine.minfeatureframes must be positive", "engine.minfeatureframes", s.Engine.MinFeatureFrames)
	}
	if s.Pipeline.RingCapacity <= 0 || s.Pipeline.RingCapacity&(s.Pipeline.RingCapacity-1) != 0 {
		return validationError("pipeline.ringcapacity must be a positive power of two", "pipeline.ringcapacity", s.Pipeline.RingCapacity)
	}
	if s.Pipeline.MaxDrainPerCall <= 0 {
		return validationError("pipeline.maxdrainpercall must be positive", "pipeline.maxdrainpercall", s.Pipeline.MaxDrainPerCall)
	}
	if s.VAD.EnergyThreshold < 0 {
		return validationError("vad.energythreshold must not be negative", "vad.energythreshold", s.VAD.EnergyThreshold)
	}
	if s.MFCC.Coefficients <= 0 || s.MFCC.Coefficients > s.MFCC.MelFilters {
		return validationError("mfcc.coefficients must be positive and not exceed mfcc.melfilters", "mfcc.coefficients", s.MFCC.Coefficients)
	}
	if s.MFCC.PreEmphasis < 0 || s.MFCC.PreEmphasis >= 1 {
		return validationError("mfcc.preemphasis must be in [0, 1)", "mfcc.preemphasis", s.MFCC.PreEmphasis)
	}
	if p := &s.Analyzers.Pitch; p.Enabled && (p.MinFreqHz <= 0 || p.MaxFreqHz <= p.MinFreqHz) {
		return validationError("analyzers.pitch frequency range is invalid", "analyzers.pitch.minfreqhz", p.MinFreqHz)
	}
	if h := &s.Analyzers.Harmonic; h.Enabled && (h.FFTSize <= 0 || h.FFTSize&(h.FFTSize-1) != 0) {
		return validationError("analyzers.harmonic.fftsize must be a power of two", "analyzers.harmonic.fftsize", h.FFTSize)
	}
	if c := &s.Analyzers.Cadence; c.Enabled && c.MaxTempoBPM <= c.MinTempoBPM {
		return validationError("analyzers.cadence tempo range is invalid", "analyzers.cadence.mintempobpm", c.MinTempoBPM)
	}
	if s.Similarity.Gamma <= 0 {
		return validationError("similarity.gamma must be positive", "similarity.gamma", s.Similarity.Gamma)
	}
	if w := s.Similarity.Weights; w.MFCC+w.Pitch+w.Harmonic+w.Cadence+w.Energy <= 0 {
		return validationError("similarity.weights must not all be zero", "similarity.weights", w)
	}
	if s.Cache.MaxRecords <= 0 {
		return validationError("cache.maxrecords must be positive", "cache.maxrecords", s.Cache.MaxRecords)
	}
	return nil
}

func validationError(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("key", key).
		Context("value", value).
		Build()
}
