package analyzers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cadenceConfig() CadenceConfig {
	return CadenceConfig{
		SampleRate:  44100,
		MinTempoBPM: 60,
		MaxTempoBPM: 200,
	}
}

// pulseTrain generates short tone bursts at the given tempo.
func pulseTrain(tempoBPM float64, sr int, seconds float64) []float32 {
	n := int(seconds * float64(sr))
	out := make([]float32, n)
	period := int(60 / tempoBPM * float64(sr))
	burst := sr / 20 // 50 ms bursts
	for start := 0; start < n; start += period {
		for i := 0; i < burst && start+i < n; i++ {
			env := math.Sin(math.Pi * float64(i) / float64(burst))
			out[start+i] = float32(0.6 * env * math.Sin(2*math.Pi*880*float64(i)/float64(sr)))
		}
	}
	return out
}

func TestCadenceAnalyzerFindsTempo(t *testing.T) {
	c := NewCadenceAnalyzer(cadenceConfig())
	c.Push(pulseTrain(120, 44100, 8))

	prof := c.Profile()
	require.Positive(t, prof.Confidence)
	// Accept the octave-adjacent estimate as well; autocorrelation tempo
	// pickers commonly lock onto half or double time.
	ok := math.Abs(prof.TempoBPM-120) < 12 ||
		math.Abs(prof.TempoBPM-60) < 6 ||
		math.Abs(prof.TempoBPM-240) < 24
	assert.True(t, ok, "tempo %f not near 120 or an octave", prof.TempoBPM)
	assert.NotEmpty(t, prof.OnsetTimes)
}

func TestCadenceAnalyzerSilence(t *testing.T) {
	c := NewCadenceAnalyzer(cadenceConfig())
	c.Push(make([]float32, 4*44100))
	prof := c.Profile()
	assert.Zero(t, prof.TempoBPM)
	assert.Zero(t, prof.Confidence)
}

func TestCadenceAnalyzerTooShort(t *testing.T) {
	c := NewCadenceAnalyzer(cadenceConfig())
	c.Push(sine(440, 44100, 2048, 0.5))
	prof := c.Profile()
	assert.Zero(t, prof.Confidence, "a 2048-sample clip is too short for a tempo estimate")
}

func TestCadenceTempoClipped(t *testing.T) {
	c := NewCadenceAnalyzer(cadenceConfig())
	c.Push(pulseTrain(120, 44100, 8))
	prof := c.Profile()
	if prof.Confidence > 0 {
		assert.GreaterOrEqual(t, prof.TempoBPM, 60.0)
		assert.LessOrEqual(t, prof.TempoBPM, 200.0)
	}
}
