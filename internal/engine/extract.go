package engine

import (
	"time"

	"github.com/wildcall/callmatch-go/internal/analyzers"
	"github.com/wildcall/callmatch-go/internal/dsp"
	"github.com/wildcall/callmatch-go/internal/mastercache"
	"github.com/wildcall/callmatch-go/internal/pipeline"
	"github.com/wildcall/callmatch-go/internal/similarity"
)

// Features returns a read-only view of a session's feature store. The
// sequence is append-only; callers must not retain it past the session.
func (e *Engine) Features(id SessionID) (*dsp.FeatureSequence, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features, nil
}

// PitchTrack returns the raw per-frame pitch results for a session, or nil
// when the pitch analyzer is disabled.
func (e *Engine) PitchTrack(id SessionID) ([]analyzers.PitchResult, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pitch == nil {
		return nil, nil
	}
	return s.pitch.Results(), nil
}

// SessionState reports the lifecycle state of a session.
func (e *Engine) SessionState(id SessionID) (SessionState, error) {
	s, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	return s.State(), nil
}

// ExtractMasterRecord runs the full pipeline offline over a complete
// recording and produces a master record ready for the cache: the same
// framing, gating and extraction a live session performs, plus the enhanced
// analyzer profile.
func (e *Engine) ExtractMasterRecord(callID string, samples []float32, sampleRate, frameSize, hopSize, numCoeffs int) (*mastercache.Record, error) {
	extractor, err := dsp.NewMFCCExtractor(dsp.MFCCConfig{
		SampleRate:  sampleRate,
		FrameSize:   frameSize,
		NumCoeffs:   numCoeffs,
		NumFilters:  e.cfg.MFCC.NumFilters,
		LowFreqHz:   e.cfg.MFCC.LowFreqHz,
		HighFreqHz:  e.cfg.MFCC.HighFreqHz,
		PreEmphasis: e.cfg.MFCC.PreEmphasis,
	})
	if err != nil {
		return nil, err
	}

	framer := pipeline.NewFramer(frameSize, hopSize, sampleRate)
	vad := pipeline.NewVAD(pipeline.VADConfig{
		Enabled:         e.cfg.VAD.Enabled,
		EnergyThreshold: e.cfg.VAD.EnergyThreshold,
		MinVoiced:       e.cfg.VAD.MinVoiced,
		Hangover:        e.cfg.VAD.Hangover,
		SampleRate:      sampleRate,
		HopSize:         hopSize,
	})

	var pitch *analyzers.PitchTracker
	if e.cfg.Analyzers.PitchEnabled {
		pitch = analyzers.NewPitchTracker(analyzers.PitchConfig{
			SampleRate: sampleRate,
			FrameSize:  frameSize,
			MinFreqHz:  e.cfg.Analyzers.PitchMinFreqHz,
			MaxFreqHz:  e.cfg.Analyzers.PitchMaxFreqHz,
			Threshold:  e.cfg.Analyzers.PitchThreshold,
		})
	}
	var harmonic *analyzers.HarmonicAnalyzer
	if e.cfg.Analyzers.HarmonicEnabled {
		harmonic = analyzers.NewHarmonicAnalyzer(analyzers.HarmonicConfig{
			SampleRate: sampleRate,
			FFTSize:    e.cfg.Analyzers.HarmonicFFTSize,
			OverlapPct: e.cfg.Analyzers.HarmonicOverlap,
		})
	}
	var cadence *analyzers.CadenceAnalyzer
	if e.cfg.Analyzers.CadenceEnabled {
		cadence = analyzers.NewCadenceAnalyzer(analyzers.CadenceConfig{
			SampleRate:  sampleRate,
			MinTempoBPM: e.cfg.Analyzers.MinTempoBPM,
			MaxTempoBPM: e.cfg.Analyzers.MaxTempoBPM,
		})
	}

	if harmonic != nil {
		harmonic.Push(samples)
	}
	if cadence != nil {
		cadence.Push(samples)
	}

	features := dsp.NewFeatureSequence(numCoeffs)
	err = framer.Push(samples, func(frame []float32, ts time.Duration) error {
		if !vad.Process(frame) {
			return nil
		}
		if pitch != nil {
			pitch.ProcessFrame(frame, ts)
		}
		return extractor.Extract(frame, ts, features)
	})
	if err != nil {
		return nil, err
	}

	rec := &mastercache.Record{
		CallID: callID,
		Params: mastercache.Params{
			SampleRate: uint32(sampleRate),
			FrameSize:  uint32(frameSize),
			HopSize:    uint32(hopSize),
			NumCoeffs:  uint32(numCoeffs),
			NumFilters: uint32(e.cfg.MFCC.NumFilters),
		},
		Features:    features,
		Fingerprint: features.Fingerprint(),
	}

	if pitch != nil || harmonic != nil || cadence != nil {
		profile := &analyzers.EnhancedProfile{}
		if pitch != nil {
			profile.Pitch = pitch.Profile()
		}
		if harmonic != nil {
			profile.Harmonic = harmonic.Profile()
		}
		if cadence != nil {
			profile.Cadence = cadence.Profile()
		}
		rec.Enhanced = profile
	}
	return rec, nil
}

// ScoreOnce is a convenience for offline callers: it creates a session,
// attaches the master, streams the samples, finalizes, and destroys the
// session.
func (e *Engine) ScoreOnce(callID string, samples []float32, sampleRate, frameSize, hopSize, numCoeffs int) (similarity.Report, error) {
	id, err := e.CreateSession(sampleRate, frameSize, hopSize, numCoeffs)
	if err != nil {
		return similarity.Report{}, err
	}
	defer e.DestroySession(id) //nolint:errcheck // best-effort cleanup

	if err := e.LoadMasterCall(id, callID); err != nil {
		return similarity.Report{}, err
	}

	// Feed one frame-sized slice (one ring slot) at a time and drain the
	// session whenever the ring is full, so recordings of any length fit.
	step := frameSize
	for off := 0; off < len(samples); off += step {
		end := min(off+step, len(samples))
		for {
			err := e.ProcessChunk(id, samples[off:end])
			if err == nil {
				break
			}
			if !isOverflow(err) {
				return similarity.Report{}, err
			}
			if drainErr := e.DrainSession(id); drainErr != nil {
				return similarity.Report{}, drainErr
			}
		}
	}

	return e.Finalize(id)
}
