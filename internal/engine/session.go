package engine

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wildcall/callmatch-go/internal/analyzers"
	"github.com/wildcall/callmatch-go/internal/dsp"
	"github.com/wildcall/callmatch-go/internal/errors"
	"github.com/wildcall/callmatch-go/internal/mastercache"
	"github.com/wildcall/callmatch-go/internal/observability/metrics"
	"github.com/wildcall/callmatch-go/internal/pipeline"
	"github.com/wildcall/callmatch-go/internal/similarity"
)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	StateCreated SessionState = iota
	StateActive
	StateFinalized
	StateDestroyed
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// degeneratePathFraction marks a DTW path shorter than this fraction of the
// longer sequence as untrustworthy.
const degeneratePathFraction = 0.5

// Session owns one analysis stream: its ring buffer, framer, VAD, extractor,
// analyzers, feature store, and at most one master-call reference.
type Session struct {
	id      SessionID
	cfg     *Config
	metrics *metrics.AnalysisMetrics // nil when metrics are disabled

	sampleRate int
	frameSize  int
	hopSize    int
	numCoeffs  int

	// mu guards state, the feature store, the master reference, and the
	// analyzers. Shared for read-only queries, exclusive for mutation.
	mu    sync.RWMutex
	state SessionState

	ring      *pipeline.ChunkRing
	framer    *pipeline.Framer
	vad       *pipeline.VAD
	extractor *dsp.MFCCExtractor
	features  *dsp.FeatureSequence

	pitch    *analyzers.PitchTracker
	harmonic *analyzers.HarmonicAnalyzer
	cadence  *analyzers.CadenceAnalyzer

	master   *mastercache.Record
	masterID string

	// procMu serializes the pipeline consumer; a session runs on at most
	// one worker at a time and destroy waits on it.
	procMu    sync.Mutex
	scheduled atomic.Bool
	stopped   atomic.Bool

	chunkBuf []float32 // dequeue scratch

	finalReport *similarity.Report

	// last-computed similarity, keyed by the feature fingerprints
	simMu      sync.Mutex
	simUserFP  uint64
	simValid   bool
	simCached  similarity.Report
}

func newSession(id SessionID, sampleRate, frameSize, hopSize, numCoeffs int, chunkBuf []float32, cfg *Config, m *metrics.AnalysisMetrics) (*Session, error) {
	extractor, err := dsp.NewMFCCExtractor(dsp.MFCCConfig{
		SampleRate:  sampleRate,
		FrameSize:   frameSize,
		NumCoeffs:   numCoeffs,
		NumFilters:  cfg.MFCC.NumFilters,
		LowFreqHz:   cfg.MFCC.LowFreqHz,
		HighFreqHz:  cfg.MFCC.HighFreqHz,
		PreEmphasis: cfg.MFCC.PreEmphasis,
	})
	if err != nil {
		return nil, err
	}

	ring, err := pipeline.NewChunkRing(cfg.RingCapacity, frameSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:         id,
		cfg:        cfg,
		metrics:    m,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		hopSize:    hopSize,
		numCoeffs:  numCoeffs,
		state:      StateCreated,
		ring:       ring,
		framer:     pipeline.NewFramer(frameSize, hopSize, sampleRate),
		extractor:  extractor,
		features:   dsp.NewFeatureSequence(numCoeffs),
		chunkBuf:   chunkBuf,
	}

	s.vad = pipeline.NewVAD(pipeline.VADConfig{
		Enabled:         cfg.VAD.Enabled,
		EnergyThreshold: cfg.VAD.EnergyThreshold,
		MinVoiced:       cfg.VAD.MinVoiced,
		Hangover:        cfg.VAD.Hangover,
		SampleRate:      sampleRate,
		HopSize:         hopSize,
	})

	if cfg.Analyzers.PitchEnabled {
		s.pitch = analyzers.NewPitchTracker(analyzers.PitchConfig{
			SampleRate: sampleRate,
			FrameSize:  frameSize,
			MinFreqHz:  cfg.Analyzers.PitchMinFreqHz,
			MaxFreqHz:  cfg.Analyzers.PitchMaxFreqHz,
			Threshold:  cfg.Analyzers.PitchThreshold,
		})
	}
	if cfg.Analyzers.HarmonicEnabled {
		s.harmonic = analyzers.NewHarmonicAnalyzer(analyzers.HarmonicConfig{
			SampleRate: sampleRate,
			FFTSize:    cfg.Analyzers.HarmonicFFTSize,
			OverlapPct: cfg.Analyzers.HarmonicOverlap,
		})
	}
	if cfg.Analyzers.CadenceEnabled {
		s.cadence = analyzers.NewCadenceAnalyzer(analyzers.CadenceConfig{
			SampleRate:  sampleRate,
			MinTempoBPM: cfg.Analyzers.MinTempoBPM,
			MaxTempoBPM: cfg.Analyzers.MaxTempoBPM,
		})
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() SessionID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FeatureCount returns the number of extracted feature frames.
func (s *Session) FeatureCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features.Len()
}

// enqueue validates samples and stages them on the ring. Nothing is consumed
// on any error path.
func (s *Session) enqueue(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateFinalized, StateDestroyed:
		return errors.Newf("session %d is %s and no longer accepts audio", uint64(s.id), s.state).
			Component(componentEngine).
			Category(errors.CategoryState).
			Context("session_id", uint64(s.id)).
			Context("state", s.state.String()).
			Build()
	case StateCreated:
		s.state = StateActive
	case StateActive:
	}

	if len(samples) == 0 {
		return nil
	}

	for i, v := range samples {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Newf("non-finite sample at index %d", i).
				Component(componentEngine).
				Category(errors.CategoryInvalidAudio).
				Context("session_id", uint64(s.id)).
				Context("sample_index", i).
				Build()
		}
	}

	// The whole chunk must fit or nothing is enqueued.
	pieces := (len(samples) + s.frameSize - 1) / s.frameSize
	if s.ring.Free() < pieces {
		return errors.Newf("session ring is full").
			Component(componentEngine).
			Category(errors.CategoryOverflow).
			Context("session_id", uint64(s.id)).
			Context("free_slots", s.ring.Free()).
			Context("needed_slots", pieces).
			Build()
	}
	for off := 0; off < len(samples); off += s.frameSize {
		end := min(off+s.frameSize, len(samples))
		s.ring.Enqueue(samples[off:end])
	}
	return nil
}

// drain consumes up to maxChunks queued chunks (negative = unbounded) and
// reports whether work remains. Runs on at most one goroutine at a time.
func (s *Session) drain(maxChunks int) bool {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	processed := 0
	for maxChunks < 0 || processed < maxChunks {
		if s.stopped.Load() {
			return false
		}
		n, ok := s.ring.Dequeue(s.chunkBuf)
		if !ok {
			return false
		}
		s.processSamples(s.chunkBuf[:n])
		processed++
	}
	return s.ring.Len() > 0
}

// processSamples pushes one dequeued chunk through framing, gating and
// extraction, appending features under the session's exclusive lock.
func (s *Session) processSamples(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}

	if s.harmonic != nil {
		s.harmonic.Push(samples)
	}
	if s.cadence != nil {
		s.cadence.Push(samples)
	}

	// Extraction errors on individual frames degrade to dropped frames:
	// samples were validated at the boundary, so a failure here is an
	// invariant violation worth surfacing in logs, not a caller error.
	_ = s.framer.Push(samples, func(frame []float32, ts time.Duration) error {
		if !s.vad.Process(frame) {
			return nil
		}
		if s.pitch != nil {
			s.pitch.ProcessFrame(frame, ts)
		}
		start := time.Now()
		err := s.extractor.Extract(frame, ts, s.features)
		if err == nil && s.metrics != nil {
			s.metrics.FramesExtracted.Inc()
			s.metrics.FrameDuration.Observe(time.Since(start).Seconds())
		}
		return err
	})

	s.invalidateSimCache()
}

// attachMaster resolves and pins the master record. A previously attached
// master is released; a session holds at most one reference.
func (s *Session) attachMaster(cache *mastercache.Cache, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return errors.Newf("session %d is destroyed", uint64(s.id)).
			Component(componentEngine).
			Category(errors.CategoryState).
			Build()
	}

	rec, err := cache.Acquire(callID, s.extractor.Config(), s.hopSize)
	if err != nil {
		return err
	}

	if s.masterID != "" {
		cache.Release(s.masterID)
	}
	s.master = rec
	s.masterID = callID
	if s.state == StateCreated {
		s.state = StateActive
	}
	s.invalidateSimCache()
	return nil
}

func (s *Session) invalidateSimCache() {
	s.simMu.Lock()
	s.simValid = false
	s.simMu.Unlock()
}

// report computes (or serves from cache) the current similarity report.
// A zero deadline means no time bound.
func (s *Session) report(wantPath bool, deadline time.Time) similarity.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateFinalized && s.finalReport != nil {
		return *s.finalReport
	}
	return s.computeReportLocked(wantPath, deadline)
}

// computeReportLocked builds the report under at least a shared lock.
func (s *Session) computeReportLocked(wantPath bool, deadline time.Time) similarity.Report {
	rep := similarity.Report{
		UserFrames: s.features.Len(),
	}
	if s.master != nil {
		rep.MasterFrames = s.master.Features.Len()
	}

	if s.master == nil || s.features.Len() < s.cfg.MinFeatureFrames {
		return rep // Ready=false, zero overall
	}

	// Serve the cached report when the inputs have not changed. simMu also
	// serializes fingerprint computation, which memoizes inside the store.
	s.simMu.Lock()
	fp := s.features.Fingerprint()
	if s.simValid && s.simUserFP == fp && (!wantPath || len(s.simCached.Path) > 0) {
		cached := s.simCached
		s.simMu.Unlock()
		return cached
	}
	s.simMu.Unlock()

	rep = s.scoreLocked(wantPath, deadline)

	s.simMu.Lock()
	s.simUserFP = fp
	s.simCached = rep
	s.simValid = true
	s.simMu.Unlock()
	return rep
}

// scoreLocked runs the DTW passes and fusion. Caller holds s.mu.
func (s *Session) scoreLocked(wantPath bool, deadline time.Time) similarity.Report {
	user := s.features
	master := s.master.Features
	m, n := user.Len(), master.Len()

	rep := similarity.Report{UserFrames: m, MasterFrames: n}

	band := similarity.BandHalfWidth(m, n, s.cfg.Similarity.BandMin, s.cfg.Similarity.BandFraction)

	dtwStart := time.Now()
	align := similarity.Align(user, master, band, wantPath)
	fullPathLen := align.PathLength

	timedOut := func() bool {
		return !deadline.IsZero() && time.Now().After(deadline)
	}

	if similarity.ShouldTrySubsequence(m, n) && !timedOut() {
		if sub := similarity.AlignSubsequence(user, master); sub.AvgDistance < align.AvgDistance {
			sub.Path = align.Path
			align = sub
		}
	}
	if s.metrics != nil {
		s.metrics.DTWDuration.Observe(time.Since(dtwStart).Seconds())
	}

	gamma := s.cfg.Similarity.Gamma
	rep.Breakdown.MFCC = similarity.Component{
		Score:      similarity.Similarity(align.AvgDistance, gamma),
		Confidence: 1,
	}
	rep.Path = align.Path

	if !timedOut() {
		energyAlign := similarity.AlignEnergies(user.Energies(), master.Energies(), band)
		rep.Breakdown.Energy = similarity.Component{
			Score:      similarity.Similarity(energyAlign.AvgDistance, gamma),
			Confidence: 1,
		}
	}

	if s.master.Enhanced != nil {
		enh := s.master.Enhanced
		if s.pitch != nil {
			rep.Breakdown.Pitch = similarity.PitchScore(s.pitch.Profile(), enh.Pitch)
		}
		if s.harmonic != nil {
			rep.Breakdown.Harmonic = similarity.HarmonicScore(s.harmonic.Profile(), enh.Harmonic)
		}
		if s.cadence != nil {
			rep.Breakdown.Cadence = similarity.CadenceScore(
				s.cadence.Profile(), enh.Cadence, s.cfg.Similarity.ConfidenceFloor)
		}
	}

	overall, confidence := similarity.Blend(s.cfg.Similarity.Weights, rep.Breakdown)
	rep.Confidence = confidence

	// Readiness judges the constrained full alignment: a degenerate path
	// means the band could not connect the sequences.
	rep.Ready = m >= s.cfg.MinFeatureFrames &&
		fullPathLen >= int(degeneratePathFraction*float64(max(m, n))) &&
		!timedOut()

	if rep.Ready {
		rep.Overall = overall
	} else {
		rep.Overall = 0
	}
	return rep
}

// finalize drains the remaining ring inline, computes the full report with
// its alignment path under the deadline, and freezes the session. Returns
// the report and whether the deadline was exceeded.
func (s *Session) finalize() (similarity.Report, bool) {
	s.mu.Lock()
	if s.state == StateFinalized && s.finalReport != nil {
		rep := *s.finalReport
		s.mu.Unlock()
		return rep, false
	}
	s.mu.Unlock()

	// Drain outside s.mu; the consumer path takes it per chunk.
	for s.drain(-1) {
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinalized && s.finalReport != nil {
		return *s.finalReport, false
	}

	deadline := time.Time{}
	if s.cfg.FinalizeTimeout > 0 {
		deadline = time.Now().Add(s.cfg.FinalizeTimeout)
	}

	var rep similarity.Report
	if s.master == nil || s.features.Len() < s.cfg.MinFeatureFrames {
		rep = similarity.Report{UserFrames: s.features.Len()}
		if s.master != nil {
			rep.MasterFrames = s.master.Features.Len()
		}
	} else {
		rep = s.scoreLocked(true, deadline)
	}

	s.state = StateFinalized
	s.finalReport = &rep

	timedOut := !deadline.IsZero() && time.Now().After(deadline)
	return rep, timedOut
}

// destroy stops the consumer, waits for in-flight work, and releases the
// master reference.
func (s *Session) destroy(cache *mastercache.Cache) {
	s.stopped.Store(true)

	// Wait for any in-flight consumer batch to reach its safe point.
	s.procMu.Lock()
	s.ring.Drain()
	s.procMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterID != "" {
		cache.Release(s.masterID)
		s.masterID = ""
		s.master = nil
	}
	s.state = StateDestroyed
}
