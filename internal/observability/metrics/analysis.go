// Package metrics provides Prometheus instrumentation for the analysis engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics holds the engine-wide Prometheus collectors.
type AnalysisMetrics struct {
	SessionsActive     prometheus.Gauge
	SessionsCreated    prometheus.Counter
	ChunksProcessed    prometheus.Counter
	ChunksOverflowed   prometheus.Counter
	FramesExtracted    prometheus.Counter
	FrameDuration      prometheus.Histogram
	DTWDuration        prometheus.Histogram
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheEvictions     prometheus.Counter
	FinalizeTimeouts   prometheus.Counter
}

// NewAnalysisMetrics creates and registers the analysis collectors on the
// given registerer. Pass prometheus.NewRegistry() in tests to avoid duplicate
// registration panics.
func NewAnalysisMetrics(reg prometheus.Registerer) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callmatch_sessions_active",
			Help: "Number of currently open analysis sessions",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_sessions_created_total",
			Help: "Total analysis sessions created",
		}),
		ChunksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_chunks_processed_total",
			Help: "Total audio chunks accepted by ProcessChunk",
		}),
		ChunksOverflowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_chunks_overflowed_total",
			Help: "Total chunks rejected because a session ring buffer was full",
		}),
		FramesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_frames_extracted_total",
			Help: "Total MFCC feature frames extracted across all sessions",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callmatch_frame_extraction_seconds",
			Help:    "Wall time of a single MFCC frame extraction",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		DTWDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callmatch_dtw_seconds",
			Help:    "Wall time of a DTW alignment pass",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_master_cache_hits_total",
			Help: "Master call records served from the in-memory cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_master_cache_misses_total",
			Help: "Master call lookups that had to touch disk",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_master_cache_evictions_total",
			Help: "Master call records evicted from the LRU",
		}),
		FinalizeTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callmatch_finalize_timeouts_total",
			Help: "Finalize calls that hit the deferred-work deadline",
		}),
	}

	collectors := []prometheus.Collector{
		m.SessionsActive, m.SessionsCreated,
		m.ChunksProcessed, m.ChunksOverflowed,
		m.FramesExtracted, m.FrameDuration, m.DTWDuration,
		m.CacheHits, m.CacheMisses, m.CacheEvictions,
		m.FinalizeTimeouts,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
