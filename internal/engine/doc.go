// Package engine provides the core analysis surface for CallMatch. It owns
// the session registry and the shared master-call cache, and exposes the
// operations callers drive: session creation, master attachment, chunk
// ingestion, similarity queries, finalization and destruction.
//
// # Architecture Overview
//
// Each session runs an isolated pipeline:
//
//	ChunkRing -> Framer -> VAD -> MFCCExtractor -> FeatureSequence
//	                        \-> PitchTracker (per frame)
//	        raw samples ----+-> HarmonicAnalyzer, CadenceAnalyzer
//
// Scoring compares the session's feature sequence against an immutable
// MasterFeatureRecord shared by reference from the cache: banded DTW over
// the MFCC sequences (with a relaxed subsequence search for short user
// takes), plus pitch, harmonic, cadence and energy components fused into a
// confidence-weighted blend.
//
// # Lifecycle
//
// Sessions move through Created -> Active -> Finalized -> Destroyed. The
// first ProcessChunk or LoadMasterCall activates a session; Finalize drains
// pending work, computes the full report under a deadline, and freezes the
// session read-only; DestroySession is valid in any state.
//
// # Concurrency
//
// Engine methods are safe for concurrent use. The session map sits behind a
// reader-writer lock so create/destroy do not stall processing on other
// sessions. Within a session, callers enqueue onto a single-producer
// single-consumer ring; a pool of workers (capped at eight, sized from CPU
// topology) drains rings, with an in-progress flag pinning each session to
// at most one worker at a time. ProcessChunk never blocks on a full ring: it
// reports Overflow and consumes nothing. Destruction sets a stop token and
// waits for the in-flight batch to reach a safe point.
//
// With Config.ManualDrain set, no workers run and the embedder drives
// consumption through DrainSession; single-threaded hosts (WASM bindings)
// and deterministic tests use this mode.
package engine
