package mastercache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildcall/callmatch-go/internal/analyzers"
	"github.com/wildcall/callmatch-go/internal/dsp"
	"github.com/wildcall/callmatch-go/internal/errors"
)

func testRecord(t *testing.T, nFrames int, enhanced bool) *Record {
	t.Helper()
	features := dsp.NewFeatureSequence(13)
	row := make([]float32, 13)
	for i := range nFrames {
		for j := range row {
			row[j] = float32(i)*0.5 + float32(j)*0.25
		}
		features.Append(row, float32(i)*0.1, 0)
	}
	rec := &Record{
		CallID: "elk-bugle",
		Params: Params{
			SampleRate: 44100,
			FrameSize:  512,
			HopSize:    256,
			NumCoeffs:  13,
			NumFilters: 26,
		},
		Features:    features,
		Fingerprint: features.Fingerprint(),
	}
	if enhanced {
		rec.Enhanced = &analyzers.EnhancedProfile{
			Pitch: analyzers.PitchProfile{MedianF0Hz: 440, Confidence: 0.9},
			Harmonic: analyzers.HarmonicProfile{
				CentroidHz: 1200,
				SpreadHz:   300,
				Tonal:      analyzers.TonalQuality{Rasp: 0.1, Brightness: 0.4, Resonance: 0.6, Roughness: 0.2},
				Confidence: 0.75,
			},
			Cadence: analyzers.CadenceProfile{TempoBPM: 120, Confidence: 0.7},
		}
	}
	return rec
}

func TestCodecRoundTripNumericFields(t *testing.T) {
	for _, enhanced := range []bool{false, true} {
		rec := testRecord(t, 25, enhanced)
		data := Encode(rec)

		got, err := Decode(rec.CallID, data)
		require.NoError(t, err)

		assert.Equal(t, rec.Params, got.Params)
		assert.Equal(t, rec.Fingerprint, got.Fingerprint)
		assert.True(t, rec.Features.Equal(got.Features), "feature frames must survive bit-for-bit")

		if enhanced {
			require.NotNil(t, got.Enhanced)
			assert.InDelta(t, 440, got.Enhanced.Pitch.MedianF0Hz, 1e-3)
			assert.InDelta(t, 0.6, got.Enhanced.Harmonic.Tonal.Resonance, 1e-6)
			assert.InDelta(t, 120, got.Enhanced.Cadence.TempoBPM, 1e-3)
		} else {
			assert.Nil(t, got.Enhanced)
		}
	}
}

func TestCodecRoundTripBytes(t *testing.T) {
	rec := testRecord(t, 10, true)
	data := Encode(rec)

	got, err := Decode(rec.CallID, data)
	require.NoError(t, err)
	assert.Equal(t, data, Encode(got), "re-encoding a decoded record reproduces the bytes")
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := Encode(testRecord(t, 5, false))
	data[0] = 'X'
	_, err := Decode("x", data)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCorruptData))
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	data := Encode(testRecord(t, 5, false))
	data[4] = 99
	_, err := Decode("x", data)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryVersionMismatch))
}

func TestDecodeRejectsUnknownFlags(t *testing.T) {
	data := Encode(testRecord(t, 5, false))
	data[6] |= 0x80
	_, err := Decode("x", data)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryVersionMismatch))
}

func TestDecodeRejectsZeroFrames(t *testing.T) {
	rec := testRecord(t, 1, false)
	data := Encode(rec)
	// Rewrite the frame count to zero and truncate the payload.
	data[28], data[29], data[30], data[31] = 0, 0, 0, 0
	_, err := Decode("x", data[:headerSize])
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCorruptData))
}

func TestDecodeRejectsTruncation(t *testing.T) {
	data := Encode(testRecord(t, 8, false))
	_, err := Decode("x", data[:len(data)-7])
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCorruptData))
}

func TestDecodeRejectsFingerprintMismatch(t *testing.T) {
	data := Encode(testRecord(t, 8, false))
	data[headerSize] ^= 0xFF // flip a coefficient byte
	_, err := Decode("x", data)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCorruptData))
}

func TestCompatibleWith(t *testing.T) {
	rec := testRecord(t, 5, false)
	cfg := dsp.MFCCConfig{SampleRate: 44100, FrameSize: 512, NumCoeffs: 13, NumFilters: 26}
	assert.True(t, rec.CompatibleWith(cfg, 256))

	cfg.SampleRate = 48000
	assert.False(t, rec.CompatibleWith(cfg, 256))
}
