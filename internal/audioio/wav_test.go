package audioio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildcall/callmatch-go/internal/errors"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")

	const sr = 44100
	samples := make([]float32, sr)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/sr))
	}

	require.NoError(t, WriteWAV(path, samples, sr))

	clip, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, sr, clip.SampleRate)
	require.Len(t, clip.Samples, len(samples))

	// 16-bit quantization bounds the round-trip error.
	for i := 0; i < len(samples); i += 1000 {
		assert.InDelta(t, samples[i], clip.Samples[i], 1.0/32000)
	}
}

func TestWriteWAVClipsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")

	require.NoError(t, WriteWAV(path, []float32{2.0, -2.0, 0}, 44100))
	clip, err := ReadWAV(path)
	require.NoError(t, err)
	require.Len(t, clip.Samples, 3)
	assert.InDelta(t, 1.0, clip.Samples[0], 0.01)
	assert.InDelta(t, -1.0, clip.Samples[1], 0.01)
}

func TestReadWAVMissingFile(t *testing.T) {
	_, err := ReadWAV(filepath.Join(t.TempDir(), "absent.wav"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestReadWAVGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a riff container"), 0o644))

	_, err := ReadWAV(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCorruptData))
}
