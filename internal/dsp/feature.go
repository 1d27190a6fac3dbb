package dsp

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"
)

// FeatureFrame is a non-owning view of one extracted frame: the MFCC vector,
// its log-energy scalar, and the frame timestamp. Immutable once produced.
type FeatureFrame struct {
	Coefficients []float32
	Energy       float32
	Timestamp    time.Duration
}

// FeatureSequence is an append-only sequence of feature frames. Coefficients
// are stored in one flat slice with a fixed stride so appends amortize and
// DTW consumers get contiguous views.
type FeatureSequence struct {
	coeffs   []float32
	energies []float32
	times    []time.Duration
	stride   int

	fingerprint uint64
	fpValid     bool
}

// NewFeatureSequence creates an empty sequence for vectors of the given width.
func NewFeatureSequence(stride int) *FeatureSequence {
	return &FeatureSequence{stride: stride}
}

// Stride returns the coefficient count per frame.
func (s *FeatureSequence) Stride() int { return s.stride }

// Len returns the number of frames.
func (s *FeatureSequence) Len() int { return len(s.energies) }

// Append adds a frame. The coefficient slice is copied; callers may reuse it.
func (s *FeatureSequence) Append(coeffs []float32, energy float32, ts time.Duration) {
	s.coeffs = append(s.coeffs, coeffs[:s.stride]...)
	s.energies = append(s.energies, energy)
	s.times = append(s.times, ts)
	s.fpValid = false
}

// Frame returns a non-owning view of the i-th coefficient vector.
func (s *FeatureSequence) Frame(i int) []float32 {
	return s.coeffs[i*s.stride : (i+1)*s.stride : (i+1)*s.stride]
}

// At returns the i-th frame as a view struct.
func (s *FeatureSequence) At(i int) FeatureFrame {
	return FeatureFrame{
		Coefficients: s.Frame(i),
		Energy:       s.energies[i],
		Timestamp:    s.times[i],
	}
}

// Energy returns the i-th log-energy scalar.
func (s *FeatureSequence) Energy(i int) float32 { return s.energies[i] }

// Energies returns a non-owning view of all energies.
func (s *FeatureSequence) Energies() []float32 { return s.energies }

// Timestamp returns the i-th frame timestamp.
func (s *FeatureSequence) Timestamp(i int) time.Duration { return s.times[i] }

// Fingerprint returns the FNV-1a hash of the concatenated coefficients,
// used as the cache key for derived results. Cached until the next Append.
func (s *FeatureSequence) Fingerprint() uint64 {
	if s.fpValid {
		return s.fingerprint
	}
	h := fnv.New64a()
	var buf [4]byte
	for _, c := range s.coeffs {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(c))
		h.Write(buf[:]) //nolint:errcheck // fnv never fails
	}
	s.fingerprint = h.Sum64()
	s.fpValid = true
	return s.fingerprint
}

// Equal reports whether two sequences hold bit-identical frames.
func (s *FeatureSequence) Equal(other *FeatureSequence) bool {
	if s.Len() != other.Len() || s.stride != other.stride {
		return false
	}
	for i, c := range s.coeffs {
		if math.Float32bits(c) != math.Float32bits(other.coeffs[i]) {
			return false
		}
	}
	for i, e := range s.energies {
		if math.Float32bits(e) != math.Float32bits(other.energies[i]) {
			return false
		}
	}
	return true
}
