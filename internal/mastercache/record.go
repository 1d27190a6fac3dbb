// Package mastercache stores master-call feature records: a versioned
// on-disk container plus an in-memory LRU keyed by call id. Records are
// immutable after load and shared by reference across sessions; eviction is
// deferred while any session still holds a reference.
package mastercache

import (
	"github.com/wildcall/callmatch-go/internal/analyzers"
	"github.com/wildcall/callmatch-go/internal/dsp"
)

// FormatVersion is the .mfc container version this build reads and writes.
const FormatVersion uint16 = 2

// flagHasEnhancedProfile marks records carrying the analyzer summary block.
const flagHasEnhancedProfile uint16 = 1 << 0

// knownFlags masks the flag bits this build understands; any other bit set
// in a file is a forward-compatibility break.
const knownFlags = flagHasEnhancedProfile

// Params are the extraction parameters a record was baked with.
type Params struct {
	SampleRate uint32
	FrameSize  uint32
	HopSize    uint32
	NumCoeffs  uint32
	NumFilters uint32
}

// Record is an immutable master-call feature record.
type Record struct {
	CallID      string
	Params      Params
	Features    *dsp.FeatureSequence
	Fingerprint uint64
	Enhanced    *analyzers.EnhancedProfile // nil for records baked without analyzers
}

// CompatibleWith reports whether a record can serve a session extracting with
// the given configuration. The core parameters must match exactly; the
// presence or absence of the enhanced profile is backward compatible.
func (r *Record) CompatibleWith(cfg dsp.MFCCConfig, hopSize int) bool {
	return int(r.Params.SampleRate) == cfg.SampleRate &&
		int(r.Params.FrameSize) == cfg.FrameSize &&
		int(r.Params.HopSize) == hopSize &&
		int(r.Params.NumCoeffs) == cfg.NumCoeffs &&
		int(r.Params.NumFilters) == cfg.NumFilters
}
