package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	setDefaultConfig()
	s := &Settings{}
	require.NoError(t, viper.Unmarshal(s))
	return s
}

func TestDefaultsAreValid(t *testing.T) {
	s := defaultSettings(t)
	require.NoError(t, ValidateSettings(s))

	assert.Equal(t, 256, s.Engine.MaxSessions)
	assert.Equal(t, 10, s.Engine.MinFeatureFrames)
	assert.Equal(t, 128, s.Pipeline.RingCapacity)
	assert.Equal(t, 13, s.MFCC.Coefficients)
	assert.Equal(t, 26, s.MFCC.MelFilters)
	assert.InDelta(t, 0.97, s.MFCC.PreEmphasis, 1e-9)
	assert.InDelta(t, 0.01, s.VAD.EnergyThreshold, 1e-9)
	assert.InDelta(t, 0.5, s.Similarity.Weights.MFCC, 1e-9)
}

func TestValidateRejectsBadRingCapacity(t *testing.T) {
	s := defaultSettings(t)
	s.Pipeline.RingCapacity = 100 // not a power of two
	assert.Error(t, ValidateSettings(s))
}

func TestValidateRejectsCoefficientsAboveFilters(t *testing.T) {
	s := defaultSettings(t)
	s.MFCC.Coefficients = 40
	assert.Error(t, ValidateSettings(s))
}

func TestValidateRejectsZeroWeights(t *testing.T) {
	s := defaultSettings(t)
	s.Similarity.Weights = ComponentWeights{}
	assert.Error(t, ValidateSettings(s))
}

func TestValidateRejectsInvertedPitchRange(t *testing.T) {
	s := defaultSettings(t)
	s.Analyzers.Pitch.MaxFreqHz = 50
	assert.Error(t, ValidateSettings(s))
}
