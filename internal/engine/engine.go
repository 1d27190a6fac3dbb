// Package engine exposes the public analysis surface: an Engine owning the
// master-call cache and a set of isolated sessions, each running its own
// streaming feature pipeline and similarity scoring.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wildcall/callmatch-go/internal/conf"
	"github.com/wildcall/callmatch-go/internal/cpuspec"
	"github.com/wildcall/callmatch-go/internal/errors"
	"github.com/wildcall/callmatch-go/internal/logging"
	"github.com/wildcall/callmatch-go/internal/mastercache"
	"github.com/wildcall/callmatch-go/internal/observability/metrics"
	"github.com/wildcall/callmatch-go/internal/pipeline"
	"github.com/wildcall/callmatch-go/internal/similarity"
)

const componentEngine = "engine"

// maxWorkerThreads caps the consumer pool regardless of CPU topology.
const maxWorkerThreads = 8

// SessionID identifies a session. Ids are monotonically increasing and never
// reused within a process.
type SessionID uint64

// Config holds engine-wide settings. Session-specific parameters (sample
// rate, frame geometry, coefficient count) arrive per CreateSession call.
type Config struct {
	MaxSessions      int
	WorkerThreads    int  // 0 = auto from CPU topology, capped at 8
	ManualDrain      bool // no consumer pool; callers drain via DrainSession/Finalize
	MinFeatureFrames int
	FinalizeTimeout  time.Duration

	RingCapacity    int
	MaxDrainPerCall int
	BufferPoolSize  int // preallocated frame buffers per frame size

	VAD struct {
		Enabled         bool
		EnergyThreshold float64
		MinVoiced       time.Duration
		Hangover        time.Duration
	}

	MFCC struct {
		NumFilters  int
		LowFreqHz   float64
		HighFreqHz  float64
		PreEmphasis float64
	}

	Analyzers struct {
		PitchEnabled    bool
		PitchMinFreqHz  float64
		PitchMaxFreqHz  float64
		PitchThreshold  float64
		HarmonicEnabled bool
		HarmonicFFTSize int
		HarmonicOverlap float64
		CadenceEnabled  bool
		MinTempoBPM     float64
		MaxTempoBPM     float64
	}

	Similarity struct {
		Gamma           float64
		BandMin         int
		BandFraction    float64
		Weights         similarity.Weights
		ConfidenceFloor float64
	}

	Cache mastercache.Config
}

// FromSettings maps the loaded configuration tree onto an engine Config.
func FromSettings(s *conf.Settings) Config {
	var cfg Config
	cfg.MaxSessions = s.Engine.MaxSessions
	cfg.WorkerThreads = s.Engine.WorkerThreads
	cfg.MinFeatureFrames = s.Engine.MinFeatureFrames
	cfg.FinalizeTimeout = time.Duration(s.Engine.FinalizeTimeoutMs) * time.Millisecond
	cfg.RingCapacity = s.Pipeline.RingCapacity
	cfg.MaxDrainPerCall = s.Pipeline.MaxDrainPerCall
	cfg.BufferPoolSize = s.Pipeline.BufferPoolSize

	cfg.VAD.Enabled = s.VAD.Enabled
	cfg.VAD.EnergyThreshold = s.VAD.EnergyThreshold
	cfg.VAD.MinVoiced = time.Duration(s.VAD.MinVoicedMs) * time.Millisecond
	cfg.VAD.Hangover = time.Duration(s.VAD.HangoverMs) * time.Millisecond

	cfg.MFCC.NumFilters = s.MFCC.MelFilters
	cfg.MFCC.LowFreqHz = s.MFCC.LowFreqHz
	cfg.MFCC.HighFreqHz = s.MFCC.HighFreqHz
	cfg.MFCC.PreEmphasis = s.MFCC.PreEmphasis

	cfg.Analyzers.PitchEnabled = s.Analyzers.Pitch.Enabled
	cfg.Analyzers.PitchMinFreqHz = s.Analyzers.Pitch.MinFreqHz
	cfg.Analyzers.PitchMaxFreqHz = s.Analyzers.Pitch.MaxFreqHz
	cfg.Analyzers.PitchThreshold = s.Analyzers.Pitch.Threshold
	cfg.Analyzers.HarmonicEnabled = s.Analyzers.Harmonic.Enabled
	cfg.Analyzers.HarmonicFFTSize = s.Analyzers.Harmonic.FFTSize
	cfg.Analyzers.HarmonicOverlap = s.Analyzers.Harmonic.OverlapPct
	cfg.Analyzers.CadenceEnabled = s.Analyzers.Cadence.Enabled
	cfg.Analyzers.MinTempoBPM = s.Analyzers.Cadence.MinTempoBPM
	cfg.Analyzers.MaxTempoBPM = s.Analyzers.Cadence.MaxTempoBPM

	cfg.Similarity.Gamma = s.Similarity.Gamma
	cfg.Similarity.BandMin = s.Similarity.BandMin
	cfg.Similarity.BandFraction = s.Similarity.BandFraction
	cfg.Similarity.Weights = similarity.Weights{
		MFCC:     s.Similarity.Weights.MFCC,
		Pitch:    s.Similarity.Weights.Pitch,
		Harmonic: s.Similarity.Weights.Harmonic,
		Cadence:  s.Similarity.Weights.Cadence,
		Energy:   s.Similarity.Weights.Energy,
	}
	cfg.Similarity.ConfidenceFloor = s.Similarity.ConfidenceFloor

	cfg.Cache.Dir = s.Cache.Path
	cfg.Cache.MaxRecords = s.Cache.MaxRecords
	cfg.Cache.NegativeTTL = time.Duration(s.Cache.NegativeTTLs) * time.Second
	return cfg
}

// DefaultConfig returns the documented defaults without reading any file.
func DefaultConfig() Config {
	var cfg Config
	cfg.MaxSessions = 256
	cfg.MinFeatureFrames = 10
	cfg.FinalizeTimeout = 2 * time.Second
	cfg.RingCapacity = 128
	cfg.MaxDrainPerCall = 32
	cfg.BufferPoolSize = 64

	cfg.VAD.Enabled = true
	cfg.VAD.EnergyThreshold = 0.01
	cfg.VAD.MinVoiced = 40 * time.Millisecond
	cfg.VAD.Hangover = 100 * time.Millisecond

	cfg.MFCC.NumFilters = 26
	cfg.MFCC.PreEmphasis = 0.97

	cfg.Analyzers.PitchEnabled = true
	cfg.Analyzers.PitchMinFreqHz = 80
	cfg.Analyzers.PitchMaxFreqHz = 2000
	cfg.Analyzers.PitchThreshold = 0.2
	cfg.Analyzers.HarmonicEnabled = true
	cfg.Analyzers.HarmonicFFTSize = 4096
	cfg.Analyzers.HarmonicOverlap = 0.75
	cfg.Analyzers.CadenceEnabled = true
	cfg.Analyzers.MinTempoBPM = 60
	cfg.Analyzers.MaxTempoBPM = 200

	cfg.Similarity.Gamma = 0.5
	cfg.Similarity.BandMin = 20
	cfg.Similarity.BandFraction = 0.1
	cfg.Similarity.Weights = similarity.DefaultWeights()
	cfg.Similarity.ConfidenceFloor = 0.5

	cfg.Cache.MaxRecords = 64
	cfg.Cache.NegativeTTL = 30 * time.Second
	return cfg
}

// Engine owns the session map and the shared master-call cache. Create one
// per process, or several in tests; there is no global instance.
type Engine struct {
	cfg     Config
	cache   *mastercache.Cache
	metrics *metrics.AnalysisMetrics
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[SessionID]*Session
	nextID   atomic.Uint64
	closed   bool

	// frame-size keyed buffer pools shared by sessions; a session borrows
	// its dequeue scratch at creation and returns it on destroy
	poolsMu sync.Mutex
	pools   map[int]*pipeline.Float32Pool

	workCh chan *Session
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an engine, its cache, and (unless ManualDrain is set) the
// consumer worker pool.
func New(cfg Config) (*Engine, error) {
	logger := logging.ForService(componentEngine)
	if logger == nil {
		logger = slog.Default().With("service", componentEngine)
	}

	cacheCfg := cfg.Cache
	if cacheCfg.MaxRecords <= 0 {
		cacheCfg.MaxRecords = 64
	}
	if cacheCfg.Metrics == nil {
		cacheCfg.Metrics = metrics.Global()
	}
	cache, err := mastercache.New(cacheCfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		cache:    cache,
		metrics:  cacheCfg.Metrics,
		logger:   logger,
		sessions: make(map[SessionID]*Session),
		pools:    make(map[int]*pipeline.Float32Pool),
		workCh:   make(chan *Session, 4*maxWorkerThreads),
		stopCh:   make(chan struct{}),
	}

	if !cfg.ManualDrain {
		workers := cfg.WorkerThreads
		if workers <= 0 {
			workers = cpuspec.GetCPUSpec().WorkerCount(maxWorkerThreads)
		}
		if workers > maxWorkerThreads {
			workers = maxWorkerThreads
		}
		for range workers {
			e.wg.Add(1)
			go e.workerLoop()
		}
		logger.Info("engine started", "workers", workers, "max_sessions", cfg.MaxSessions)
	}
	return e, nil
}

// Cache exposes the master cache for offline baking (the extract command).
func (e *Engine) Cache() *mastercache.Cache { return e.cache }

// CreateSession validates the parameters and registers a new session.
func (e *Engine) CreateSession(sampleRate, frameSize, hopSize, mfccCoeffs int) (SessionID, error) {
	if sampleRate <= 0 {
		return 0, invalidParams("sample rate must be positive", "sample_rate", sampleRate)
	}
	if frameSize <= 0 || frameSize&(frameSize-1) != 0 {
		return 0, invalidParams("frame size must be a positive power of two", "frame_size", frameSize)
	}
	if hopSize <= 0 || hopSize > frameSize {
		return 0, invalidParams("hop size must be positive and not exceed the frame size", "hop_size", hopSize)
	}
	if mfccCoeffs <= 0 || mfccCoeffs > e.cfg.MFCC.NumFilters {
		return 0, invalidParams("coefficient count must be positive and not exceed the filter count", "mfcc_coeffs", mfccCoeffs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errors.Newf("engine is closed").
			Component(componentEngine).
			Category(errors.CategoryState).
			Build()
	}
	if len(e.sessions) >= e.cfg.MaxSessions {
		return 0, errors.Newf("session cap of %d reached", e.cfg.MaxSessions).
			Component(componentEngine).
			Category(errors.CategoryLimit).
			Context("max_sessions", e.cfg.MaxSessions).
			Build()
	}

	chunkBuf, err := e.acquireFrameBuffer(frameSize)
	if err != nil {
		return 0, err
	}

	id := SessionID(e.nextID.Add(1))
	s, err := newSession(id, sampleRate, frameSize, hopSize, mfccCoeffs, chunkBuf, &e.cfg, e.metrics)
	if err != nil {
		e.releaseFrameBuffer(frameSize, chunkBuf)
		return 0, err
	}
	e.sessions[id] = s

	if e.metrics != nil {
		e.metrics.SessionsActive.Inc()
		e.metrics.SessionsCreated.Inc()
	}
	e.logger.Debug("session created",
		"session_id", uint64(id), "sample_rate", sampleRate,
		"frame_size", frameSize, "hop_size", hopSize)
	return id, nil
}

// LoadMasterCall resolves the call id through the cache and attaches the
// record to the session.
func (e *Engine) LoadMasterCall(id SessionID, callID string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.attachMaster(e.cache, callID)
}

// ProcessChunk validates and enqueues caller samples. It never blocks on a
// full ring: Overflow is returned and nothing is consumed.
func (e *Engine) ProcessChunk(id SessionID, samples []float32) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := s.enqueue(samples); err != nil {
		if e.metrics != nil && errors.IsOverflow(err) {
			e.metrics.ChunksOverflowed.Inc()
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.ChunksProcessed.Inc()
	}
	if !e.cfg.ManualDrain {
		e.schedule(s)
	}
	return nil
}

// DrainSession synchronously runs the consumer for one session until its
// ring is empty. The normal worker pool makes this unnecessary; manual-drain
// embeddings (single-threaded bindings, tests) call it explicitly.
func (e *Engine) DrainSession(id SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	for s.drain(-1) {
	}
	return nil
}

// GetSimilarity returns the current best-effort report. Before the master is
// attached or enough user frames exist, the report is well-formed with
// Ready=false and a zero overall score.
func (e *Engine) GetSimilarity(id SessionID) (similarity.Report, error) {
	s, err := e.lookup(id)
	if err != nil {
		return similarity.Report{}, err
	}
	return s.report(false, time.Time{}), nil
}

// Finalize drains remaining work, computes the full-buffer report (with
// alignment path) under the configured deadline, and freezes the session.
// Idempotent: repeated calls return the first report.
func (e *Engine) Finalize(id SessionID) (similarity.Report, error) {
	s, err := e.lookup(id)
	if err != nil {
		return similarity.Report{}, err
	}
	rep, timedOut := s.finalize()
	if timedOut && e.metrics != nil {
		e.metrics.FinalizeTimeouts.Inc()
	}
	return rep, nil
}

// DestroySession removes the session, waits for its in-flight consumer work,
// and releases its master reference. Safe in any state.
func (e *Engine) DestroySession(id SessionID) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return sessionNotFound(id)
	}

	s.destroy(e.cache)
	e.releaseFrameBuffer(s.frameSize, s.chunkBuf)
	if e.metrics != nil {
		e.metrics.SessionsActive.Dec()
	}
	e.logger.Debug("session destroyed", "session_id", uint64(id))
	return nil
}

// Close destroys all sessions and stops the worker pool.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	remaining := make([]*Session, 0, len(e.sessions))
	for id, s := range e.sessions {
		remaining = append(remaining, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	for _, s := range remaining {
		s.destroy(e.cache)
		e.releaseFrameBuffer(s.frameSize, s.chunkBuf)
		if e.metrics != nil {
			e.metrics.SessionsActive.Dec()
		}
	}

	close(e.stopCh)
	e.wg.Wait()
	return nil
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

func (e *Engine) lookup(id SessionID) (*Session, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, sessionNotFound(id)
	}
	return s, nil
}

// schedule hands the session to the worker pool unless a consumer already
// owns it; the in-progress flag keeps a session on at most one worker.
func (e *Engine) schedule(s *Session) {
	if !s.scheduled.CompareAndSwap(false, true) {
		return
	}
	select {
	case e.workCh <- s:
	case <-e.stopCh:
		s.scheduled.Store(false)
	}
}

func (e *Engine) workerLoop() {
	defer e.wg.Done()
	for {
		select {
		case s := <-e.workCh:
			again := s.drain(e.cfg.MaxDrainPerCall)
			s.scheduled.Store(false)
			if again && !s.stopped.Load() {
				e.schedule(s)
			}
		case <-e.stopCh:
			return
		}
	}
}

// acquireFrameBuffer borrows a frame-sized scratch buffer from the pool for
// that frame size, creating the pool on first use.
func (e *Engine) acquireFrameBuffer(frameSize int) ([]float32, error) {
	e.poolsMu.Lock()
	pool, ok := e.pools[frameSize]
	if !ok {
		initial := e.cfg.BufferPoolSize
		if initial <= 0 {
			initial = 64
		}
		var err error
		pool, err = pipeline.NewFloat32Pool(frameSize, min(initial, e.cfg.MaxSessions), e.cfg.MaxSessions)
		if err != nil {
			e.poolsMu.Unlock()
			return nil, err
		}
		e.pools[frameSize] = pool
	}
	e.poolsMu.Unlock()
	return pool.Acquire()
}

func (e *Engine) releaseFrameBuffer(frameSize int, buf []float32) {
	e.poolsMu.Lock()
	pool, ok := e.pools[frameSize]
	e.poolsMu.Unlock()
	if ok {
		pool.Release(buf)
	}
}

func isOverflow(err error) bool {
	return errors.IsOverflow(err)
}

func invalidParams(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component(componentEngine).
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

func sessionNotFound(id SessionID) error {
	return errors.Newf("session %d not found", uint64(id)).
		Component(componentEngine).
		Category(errors.CategorySessionNotFound).
		Context("session_id", uint64(id)).
		Build()
}
