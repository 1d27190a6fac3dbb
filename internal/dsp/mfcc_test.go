package dsp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildcall/callmatch-go/internal/errors"
)

func testConfig() MFCCConfig {
	return MFCCConfig{
		SampleRate:  44100,
		FrameSize:   512,
		NumCoeffs:   13,
		NumFilters:  26,
		PreEmphasis: 0.97,
	}
}

func sineFrame(freq float64, sr, n int) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return frame
}

func TestNewMFCCExtractorRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MFCCConfig)
	}{
		{"zero sample rate", func(c *MFCCConfig) { c.SampleRate = 0 }},
		{"non power of two frame", func(c *MFCCConfig) { c.FrameSize = 500 }},
		{"zero frame", func(c *MFCCConfig) { c.FrameSize = 0 }},
		{"coeffs above filters", func(c *MFCCConfig) { c.NumCoeffs = 30 }},
		{"zero filters", func(c *MFCCConfig) { c.NumFilters = 0; c.NumCoeffs = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewMFCCExtractor(cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	ext, err := NewMFCCExtractor(testConfig())
	require.NoError(t, err)

	frame := sineFrame(440, 44100, 512)

	a := NewFeatureSequence(13)
	b := NewFeatureSequence(13)
	for range 5 {
		require.NoError(t, ext.Extract(frame, 0, a))
	}
	for range 5 {
		require.NoError(t, ext.Extract(frame, 0, b))
	}

	assert.True(t, a.Equal(b), "repeated extraction must be bit-identical")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestExtractRejectsNonFinite(t *testing.T) {
	ext, err := NewMFCCExtractor(testConfig())
	require.NoError(t, err)

	frame := sineFrame(440, 44100, 512)
	frame[100] = float32(math.NaN())

	seq := NewFeatureSequence(13)
	err = ext.Extract(frame, 0, seq)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))
	assert.Equal(t, 0, seq.Len(), "failed extraction must not append")
}

func TestExtractRejectsWrongLength(t *testing.T) {
	ext, err := NewMFCCExtractor(testConfig())
	require.NoError(t, err)

	seq := NewFeatureSequence(13)
	err = ext.Extract(make([]float32, 100), 0, seq)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))
}

func TestExtractDistinguishesPitches(t *testing.T) {
	ext, err := NewMFCCExtractor(testConfig())
	require.NoError(t, err)

	low := NewFeatureSequence(13)
	high := NewFeatureSequence(13)
	require.NoError(t, ext.Extract(sineFrame(440, 44100, 512), 0, low))
	require.NoError(t, ext.Extract(sineFrame(880, 44100, 512), 0, high))

	var dist float64
	for i, c := range low.Frame(0) {
		d := float64(c - high.Frame(0)[i])
		dist += d * d
	}
	assert.Greater(t, math.Sqrt(dist), 0.1, "different pitches must produce different cepstra")
}

func TestMelFilterbankShape(t *testing.T) {
	filters := MelFilterbank(26, 512, 44100, 0, 0)
	require.Len(t, filters, 26)

	for i, f := range filters {
		require.Len(t, f, 257)
		var sum float64
		for _, w := range f {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.Greater(t, sum, 0.0, "filter %d has no weight", i)
	}
}

func TestDCT2FirstCoefficientIsScaledMean(t *testing.T) {
	d := NewDCT2(4, 8)
	src := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	dst := make([]float64, 4)
	d.Transform(dst, src)

	// Orthonormal DCT-II of a constant vector: c0 = sqrt(n), rest zero.
	assert.InDelta(t, math.Sqrt(8), dst[0], 1e-12)
	for _, c := range dst[1:] {
		assert.InDelta(t, 0, c, 1e-12)
	}
}

func TestFeatureSequenceViews(t *testing.T) {
	seq := NewFeatureSequence(3)
	seq.Append([]float32{1, 2, 3}, 0.5, time.Millisecond)
	seq.Append([]float32{4, 5, 6}, 0.7, 2*time.Millisecond)

	require.Equal(t, 2, seq.Len())
	assert.Equal(t, []float32{4, 5, 6}, seq.Frame(1))
	assert.Equal(t, float32(0.7), seq.Energy(1))
	assert.Equal(t, 2*time.Millisecond, seq.Timestamp(1))

	fp := seq.Fingerprint()
	seq.Append([]float32{7, 8, 9}, 0.9, 3*time.Millisecond)
	assert.NotEqual(t, fp, seq.Fingerprint(), "fingerprint must change on append")
}

func TestPreEmphasisBoundary(t *testing.T) {
	src := []float64{1, 1, 1, 1}
	dst := make([]float64, 4)
	PreEmphasis(dst, src, 0.97)
	assert.InDelta(t, 1.0, dst[0], 1e-12)
	for _, v := range dst[1:] {
		assert.InDelta(t, 0.03, v, 1e-12)
	}
}
